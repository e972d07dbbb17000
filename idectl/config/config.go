// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config provides basic infrastructure to set configuration settings
// for idectl. Each setting that can be changed from the command line must
// have a corresponding flag, tagged with `flag:"name"`.
package config

import (
	"fmt"
	"reflect"
	"time"

	"gvisor.dev/idedisk/pkg/log"
)

// Config holds configuration that is shared by every idectl command.
type Config struct {
	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log"`

	// LogFormat is the log format: "text" or "json".
	LogFormat string `flag:"log-format"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// DevicesFile is the path of the device table. If empty, a single
	// in-memory device 0 with default geometry is used.
	DevicesFile string `flag:"devices"`

	// Latency is the emulated controller's delay before each completion.
	Latency time.Duration `flag:"latency"`

	// ReadyLimit bounds the status reads of the ready wait.
	ReadyLimit int `flag:"ready-limit"`

	// ProbeLimit bounds the status reads per unit while probing.
	ProbeLimit int `flag:"probe-limit"`

	// Devices is the device table, loaded from DevicesFile by NewFromFlags.
	Devices []Device
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", c.LogFormat)
	}
	if c.Latency < 0 {
		return fmt.Errorf("latency %v is negative", c.Latency)
	}
	if c.ReadyLimit < 0 || c.ProbeLimit < 0 {
		return fmt.Errorf("poll limits must not be negative: ready %d, probe %d", c.ReadyLimit, c.ProbeLimit)
	}
	return validateDevices(c.Devices)
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if _, ok := f.Tag.Lookup("flag"); !ok {
			continue
		}
		log.Infof("\t%s: %v", f.Name, obj.Field(i).Interface())
	}
	for _, d := range c.Devices {
		log.Infof("\tDevice %d: %d blocks of %d bytes, %s", d.ID, d.Blocks, d.BlockSize, d.Backing())
	}
}

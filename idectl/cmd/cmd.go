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

// Package cmd holds implementations of the idectl commands.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gvisor.dev/idedisk/idectl/cmd/util"
	"gvisor.dev/idedisk/idectl/config"
	"gvisor.dev/idedisk/pkg/atadev"
	"gvisor.dev/idedisk/pkg/cleanup"
	"gvisor.dev/idedisk/pkg/ext2"
	"gvisor.dev/idedisk/pkg/ide"
	"gvisor.dev/idedisk/pkg/log"
)

// machine is an emulated controller with its media, a probed driver and the
// interrupt dispatcher serving it.
type machine struct {
	ctl    *atadev.Controller
	drv    *ide.Driver
	images []*atadev.FileMedia
	cancel context.CancelFunc
	serve  *errgroup.Group
}

// boot builds the machine described by conf. The caller must call shutdown.
func boot(ctx context.Context, conf *config.Config) (*machine, error) {
	m := &machine{ctl: atadev.New(atadev.Options{Latency: conf.Latency})}
	cu := cleanup.MakeErr(m.closeImages)
	defer func() {
		if err := cu.Clean(); err != nil {
			log.Warningf("Closing images after failed boot: %v", err)
		}
	}()

	devs := make([]ide.DeviceConfig, 0, len(conf.Devices))
	for _, d := range conf.Devices {
		var media atadev.Media
		if d.Image == "" {
			media = atadev.NewMemMedia(d.Sectors())
		} else {
			f, err := atadev.OpenFile(d.Image, int64(d.Sectors())*512)
			if err != nil {
				return nil, fmt.Errorf("device %d: %w", d.ID, err)
			}
			m.images = append(m.images, f)
			media = f
		}
		if err := m.ctl.Attach(d.ID, media); err != nil {
			return nil, err
		}
		for _, s := range d.BadSectors {
			m.ctl.InjectBadSector(d.ID, s)
		}
		devs = append(devs, d.DriverConfig())
	}

	drv, err := ide.New(m.ctl, ide.Config{
		Devices:    devs,
		ReadyLimit: conf.ReadyLimit,
		ProbeLimit: conf.ProbeLimit,
	})
	if err != nil {
		return nil, err
	}
	m.drv = drv
	present := drv.Probe()
	log.Infof("Probe found devices %v", present)

	ctx, m.cancel = context.WithCancel(ctx)
	m.serve, ctx = errgroup.WithContext(ctx)
	lines := m.ctl.Lines()
	m.serve.Go(func() error { return drv.Serve(ctx, lines) })

	cu.Release()
	return m, nil
}

// shutdown stops interrupt dispatch and flushes and closes image files.
func (m *machine) shutdown() error {
	m.cancel()
	err := m.serve.Wait()
	return errors.Join(err, m.closeImages())
}

func (m *machine) closeImages() error {
	var errs []error
	for _, f := range m.images {
		errs = append(errs, f.Close())
	}
	m.images = nil
	return errors.Join(errs...)
}

// withDisk boots conf, hands the disk of device dev to fn and shuts down.
func withDisk(ctx context.Context, conf *config.Config, dev uint32, fn func(*ide.Driver, *ide.Disk) error) error {
	m, err := boot(ctx, conf)
	if err != nil {
		return err
	}
	disk, err := m.drv.Disk(dev)
	if err == nil {
		err = fn(m.drv, disk)
	}
	return errors.Join(err, m.shutdown())
}

// withVolume opens the ext2 volume on device dev and hands it to fn.
func withVolume(ctx context.Context, conf *config.Config, dev uint32, fn func(*ext2.Volume) error) error {
	return withDisk(ctx, conf, dev, func(_ *ide.Driver, disk *ide.Disk) error {
		v, err := ext2.Open(disk)
		if err != nil {
			return fmt.Errorf("device %d: %w", dev, err)
		}
		return fn(v)
	})
}

// parseArgs parses every positional argument as a uint32, naming them by
// names in errors.
func parseArgs(args []string, names ...string) ([]uint32, error) {
	vals := make([]uint32, len(args))
	for i, a := range args {
		name := names[len(names)-1]
		if i < len(names) {
			name = names[i]
		}
		v, err := util.ParseUint32(name, a)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	wfs "github.com/Azen233/Simple-Fuse-FS"
	wfsfuse "github.com/Azen233/Simple-Fuse-FS/fuse"
)

func main() {
	cli := cli.App{
		Name:      "wfs",
		Usage:     "Mount a WFS disk image",
		ArgsUsage: "IMAGE  MOUNTPOINT",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log the kernel FUSE protocol to stderr",
			},
			&cli.BoolFlag{
				Name:  "allow-other",
				Usage: "allow all users to access the mount",
			},
			&cli.StringSliceFlag{
				Name:  "o",
				Usage: "extra mount `OPTION` (key or key=value), repeatable",
			},
		},
		Action: mountImage,
	}

	err := cli.Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func mountImage(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("syntax: wfs [flags] IMAGE MOUNTPOINT", 2)
	}
	imagePath := c.Args().Get(0)
	mountpoint := c.Args().Get(1)

	fsys, err := wfs.MountPath(imagePath)
	if err != nil {
		return err
	}

	opts := wfsfuse.MountOptions{
		Debug:        c.Bool("debug"),
		AllowOther:   c.Bool("allow-other"),
		ExtraOptions: map[string]string{},
	}
	for _, option := range c.StringSlice("o") {
		key, value, _ := strings.Cut(option, "=")
		opts.ExtraOptions[key] = value
	}

	mfs, err := wfsfuse.Mount(mountpoint, fsys, opts)
	if err != nil {
		fsys.Unmount()
		return err
	}

	// Unmount cleanly on SIGINT/SIGTERM; Join returns once the kernel lets
	// go of the mount.
	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		<-signals
		if err := wfsfuse.Unmount(mountpoint); err != nil {
			log.Printf("unmount: %v", err)
		}
	}()

	joinErr := mfs.Join(context.Background())
	if err := fsys.Unmount(); err != nil {
		log.Printf("closing image: %v", err)
	}
	return joinErr
}

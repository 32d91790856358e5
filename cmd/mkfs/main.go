package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	wfs "github.com/Azen233/Simple-Fuse-FS"
	"github.com/Azen233/Simple-Fuse-FS/disks"
)

func main() {
	cli := cli.App{
		Name:  "mkfs",
		Usage: "Create and initialize a WFS disk image",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "d",
				Usage:    "`PATH` of the disk image to create",
				Required: true,
			},
			&cli.UintFlag{
				Name:  "i",
				Usage: "number of inode slots",
			},
			&cli.UintFlag{
				Name:  "b",
				Usage: "number of data blocks",
			},
			&cli.StringFlag{
				Name: "p",
				Usage: fmt.Sprintf(
					"predefined image `PROFILE`, one of: %v", disks.Slugs()),
			},
		},
		Action: formatImage,
	}

	err := cli.Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func formatImage(context *cli.Context) error {
	opts := wfs.FormatOptions{
		NumInodes:     uint32(context.Uint("i")),
		NumDataBlocks: uint32(context.Uint("b")),
	}

	if slug := context.String("p"); slug != "" {
		profile, err := disks.GetPredefinedImageProfile(slug)
		if err != nil {
			return err
		}
		if opts.NumInodes == 0 {
			opts.NumInodes = profile.NumInodes
		}
		if opts.NumDataBlocks == 0 {
			opts.NumDataBlocks = profile.NumDataBlocks
		}
	}
	if opts.NumInodes == 0 || opts.NumDataBlocks == 0 {
		return fmt.Errorf("give both -i and -b, or a profile with -p")
	}

	path := context.String("d")
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("cannot open disk image %q: %w", path, err)
	}
	defer file.Close()

	if err := wfs.Format(file, opts); err != nil {
		return fmt.Errorf("formatting %q failed: %w", path, err)
	}

	size, _ := wfs.ImageSize(opts)
	log.Printf(
		"formatted %s: %d inodes, %d data blocks, %d bytes",
		path, opts.NumInodes, opts.NumDataBlocks, size)
	return nil
}

package main

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"niftislice/pkg/nifti"
	"niftislice/pkg/visualization"
)

func newBatchCommand() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "batch <file>...",
		Short: "Print statistics and export a MIP for many volumes in parallel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(cfg.Processing.NumWorkers)

			var failed atomic.Int64
			start := time.Now()

			for _, path := range args {
				g.Go(func() error {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}

					// One bad volume must not stop the batch.
					if err := processVolume(path, outDir); err != nil {
						failed.Add(1)
						log.WithFields(log.Fields{
							"path":  path,
							"error": err,
						}).Error("Failed to process volume")
					}
					return nil
				})
			}

			if err := g.Wait(); err != nil {
				return err
			}

			fmt.Printf("Processed %d volumes in %.2f seconds (%d failed)\n",
				len(args), time.Since(start).Seconds(), failed.Load())
			if n := failed.Load(); n > 0 {
				return fmt.Errorf("%d of %d volumes failed", n, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", "mip", "Directory for the exported projections")
	return cmd
}

func processVolume(path, outDir string) error {
	img, err := openImage(path)
	if err != nil {
		return err
	}
	st := img.Statistics()

	output := filepath.Join(outDir, volumeBaseName(path)+"_mip."+cfg.ExportFormat().Extension())
	if err := exportMIP(img, output); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"path":     path,
		"strategy": img.LoadStrategy(),
		"min":      st.Min,
		"max":      st.Max,
		"mean":     st.Mean,
		"stddev":   st.StdDev,
		"count":    st.Count,
		"mip":      output,
	}).Info("Processed volume")
	return nil
}

func exportMIP(img *nifti.Image, output string) error {
	if cfg.ExportFormat() == visualization.FormatPNG {
		return img.ExportMIPToPNG(output, cfg.Export.Axis)
	}
	e, err := img.Exporter(exportOptions()...)
	if err != nil {
		return err
	}
	return e.ExportMIP(output, cfg.Export.Axis)
}

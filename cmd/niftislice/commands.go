package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"niftislice/pkg/config"
	"niftislice/pkg/visualization"
)

func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <file>",
		Short: "Print the decoded header",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := openImage(args[0])
			if err != nil {
				return err
			}
			h := img.Header()

			fmt.Printf("File:        %s\n", img.Filename())
			fmt.Printf("Data file:   %s\n", img.DataPath())
			fmt.Printf("Version:     NIfTI-%d (%s)\n", h.Version(), h.ByteOrder)
			fmt.Printf("Magic:       %q\n", h.Magic)
			fmt.Printf("Dimensions:  %v\n", img.Dimensions())
			fmt.Printf("Voxel size:  %v\n", h.Pixdim[1:h.NumDims()+1])
			fmt.Printf("Datatype:    %s (code %d, bitpix %d)\n", img.DataType(), h.DatatypeCode, h.Bitpix)
			fmt.Printf("vox_offset:  %d\n", h.VoxOffset)
			fmt.Printf("Scaling:     slope %g, intercept %g\n", h.SclSlope, h.SclInter)
			if h.Descrip != "" {
				fmt.Printf("Description: %s\n", h.Descrip)
			}
			if h.SformCode > 0 {
				fmt.Printf("sform (code %d):\n", h.SformCode)
				fmt.Printf("  %v\n  %v\n  %v\n", h.SrowX, h.SrowY, h.SrowZ)
			}
			return nil
		},
	}
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file>",
		Short: "Print min, max, mean and standard deviation of finite voxels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := openImage(args[0])
			if err != nil {
				return err
			}
			printStatistics(img)
			return nil
		},
	}
}

func newSliceCommand() *cobra.Command {
	var (
		index  int
		output string
	)
	cmd := &cobra.Command{
		Use:   "slice <file>",
		Short: "Export one axial slice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := openImage(args[0])
			if err != nil {
				return err
			}
			if output == "" {
				output = fmt.Sprintf("%s_%03d.%s", volumeBaseName(args[0]), index, cfg.ExportFormat().Extension())
			}

			if cfg.ExportFormat() == visualization.FormatPNG {
				err = img.ExportSliceToPNG(output, cfg.Export.Axis, index)
			} else {
				var e *visualization.Exporter
				if e, err = img.Exporter(exportOptions()...); err == nil {
					err = e.ExportSlice(output, cfg.Export.Axis, index)
				}
			}
			if err != nil {
				return err
			}
			fmt.Printf("Slice %d saved to: %s\n", index, output)
			return nil
		},
	}
	cmd.Flags().IntVar(&index, "index", 0, "Slice index along the axial axis")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output image path")
	return cmd
}

func newSlicesCommand() *cobra.Command {
	var base string
	cmd := &cobra.Command{
		Use:   "slices <file>",
		Short: "Export every axial slice as <base>_NNN.<ext>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := openImage(args[0])
			if err != nil {
				return err
			}
			if base == "" {
				base = volumeBaseName(args[0])
			}

			var paths []string
			if cfg.ExportFormat() == visualization.FormatPNG {
				paths, err = img.ExportAllSlicesToPNG(base, cfg.Export.Axis)
			} else {
				var e *visualization.Exporter
				if e, err = img.Exporter(exportOptions()...); err == nil {
					paths, err = e.SaveSliceSequence(base, cfg.Export.Axis)
				}
			}
			if err != nil {
				return err
			}
			fmt.Printf("Saved %d slices to: %s\n", len(paths), filepath.Dir(base))
			return nil
		},
	}
	cmd.Flags().StringVar(&base, "base", "", "Base name for the slice files")
	return cmd
}

func newMIPCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "mip <file>",
		Short: "Export the axial maximum-intensity projection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := openImage(args[0])
			if err != nil {
				return err
			}
			if output == "" {
				output = volumeBaseName(args[0]) + "_mip." + cfg.ExportFormat().Extension()
			}
			if err := exportMIP(img, output); err != nil {
				return err
			}
			fmt.Printf("MIP saved to: %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output image path")
	return cmd
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init <path>",
		Short: "Write the default configuration",
		Args:  cobra.ExactArgs(1),
		// The default config is written even if --config points to a broken file.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.CreateDefaultConfigFile(args[0]); err != nil {
				return err
			}
			fmt.Printf("Default configuration written to: %s\n", args[0])
			return nil
		},
	})
	return cmd
}

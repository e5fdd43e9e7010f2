package main

import (
	"fmt"
	"os"

	"github.com/o9nn/otterengine/pkg/dtype"
	"github.com/o9nn/otterengine/pkg/net"
	"github.com/o9nn/otterengine/pkg/netio"
	"github.com/o9nn/otterengine/pkg/tensor"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run NETWORK.json WEIGHTS.bin OUTPUT_BLOB",
		Short: "compile a network, load weights, and print one extracted blob",
		Args:  cobra.ExactArgs(3),
		RunE:  runRun,
	}
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, logger, err := cliConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	specs, err := loadSpecs(args[0])
	if err != nil {
		return err
	}

	weightsFile, err := os.Open(args[1])
	if err != nil {
		return fmt.Errorf("opening weights: %w", err)
	}
	defer weightsFile.Close()

	n := net.New(append(cfg.NetOptions(), net.WithLogger(logger))...)
	if err := n.Compile(specs); err != nil {
		return fmt.Errorf("compiling network: %w", err)
	}
	if err := n.LoadWeights(netio.FromStdio(weightsFile)); err != nil {
		return fmt.Errorf("loading weights: %w", err)
	}

	ex := n.NewExtractor()
	for _, node := range n.Graph().Nodes {
		if node.Layer.Type() != "Input" {
			continue
		}
		blobIdx := node.Outputs[0]
		blob := n.Graph().Blobs[blobIdx]
		in, err := tensor.Zeros(blob.Shape, dtype.Float, tensor.Contiguous)
		if err != nil {
			return fmt.Errorf("seeding input blob %q: %w", blob.Name, err)
		}
		if err := ex.InputIndex(blobIdx, in); err != nil {
			return fmt.Errorf("seeding input blob %q: %w", blob.Name, err)
		}
	}

	out, err := ex.Extract(args[2])
	if err != nil {
		return fmt.Errorf("extracting %q: %w", args[2], err)
	}

	sizes := out.Sizes()
	fmt.Printf("%s: shape=%v dtype=%v\n", args[2], sizes, out.DType())
	idx := make([]int64, len(sizes))
	n2 := out.Numel()
	for linear := int64(0); linear < n2 && linear < 16; linear++ {
		unflattenForPrint(linear, sizes, idx)
		b, err := out.At(idx...)
		if err != nil {
			return err
		}
		fmt.Printf("  %v = %g\n", idx, dtype.ToFloat64(out.DType(), b))
	}
	if n2 > 16 {
		fmt.Printf("  ... %d more elements\n", n2-16)
	}
	return nil
}

func unflattenForPrint(linear int64, sizes, idx []int64) {
	for i := len(sizes) - 1; i >= 0; i-- {
		if sizes[i] == 0 {
			idx[i] = 0
			continue
		}
		idx[i] = linear % sizes[i]
		linear /= sizes[i]
	}
}

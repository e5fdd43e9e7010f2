package main

import (
	"fmt"

	"github.com/o9nn/otterengine/pkg/net"
	"github.com/spf13/cobra"
)

func compileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile NETWORK.json",
		Short: "compile a network description and print its layout",
		Args:  cobra.ExactArgs(1),
		RunE:  runCompile,
	}
	return cmd
}

func runCompile(cmd *cobra.Command, args []string) error {
	cfg, logger, err := cliConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	specs, err := loadSpecs(args[0])
	if err != nil {
		return err
	}

	n := net.New(append(cfg.NetOptions(), net.WithLogger(logger))...)
	if err := n.Compile(specs); err != nil {
		return fmt.Errorf("compiling network: %w", err)
	}
	fmt.Print(n.Graph().Summary())
	return nil
}

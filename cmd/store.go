/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/codegenie/apiserver/internal/db"
	"github.com/codegenie/apiserver/internal/server"
	"github.com/spf13/cobra"
)

var backupDir string

// storeCmd groups maintenance of the document collections.
var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Initialize, check and repair the data collections",
}

var storeInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create every missing collection as an empty array",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		stores, closeStores, err := server.OpenStores(cmd.Context(), cfg, cliLogger(cfg))
		if err != nil {
			return err
		}
		defer closeStores()

		created, err := stores.InitAll(cmd.Context())
		for _, name := range created {
			fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", name)
		}
		return err
	},
}

var storeCheckCmd = &cobra.Command{
	Use:   "check [collection...]",
	Short: "Decode collections and report their record counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		stores, closeStores, err := server.OpenStores(cmd.Context(), cfg, cliLogger(cfg))
		if err != nil {
			return err
		}
		defer closeStores()

		names := args
		if len(names) == 0 {
			names = db.Collections
		}
		failed := 0
		for _, name := range names {
			n, err := stores.Check(cmd.Context(), name)
			if err != nil {
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s ERROR %v\n", name, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s ok    %d records\n", name, n)
		}
		if failed > 0 {
			return fmt.Errorf("%d collection(s) failed the check", failed)
		}
		return nil
	},
}

var storeRepairCmd = &cobra.Command{
	Use:   "repair <collection>",
	Short: "Reset a corrupted collection, keeping a backup of its payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		stores, closeStores, err := server.OpenStores(cmd.Context(), cfg, cliLogger(cfg))
		if err != nil {
			return err
		}
		defer closeStores()

		name := args[0]
		backup := &backupFile{
			path: filepath.Join(backupDir, fmt.Sprintf("%s.corrupt-%s.json", name, time.Now().UTC().Format("20060102T150405Z"))),
		}
		repaired, err := stores.Repair(cmd.Context(), name, backup)
		if cerr := backup.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		if backup.written > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "backed up %d bytes to %s\n", backup.written, backup.path)
		}
		if repaired {
			fmt.Fprintf(cmd.OutOrStdout(), "%s reset to an empty collection\n", name)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is healthy, nothing to do\n", name)
		}
		return nil
	},
}

// backupFile creates its file on the first write, so a healthy collection
// leaves nothing behind.
type backupFile struct {
	path    string
	f       *os.File
	written int
}

func (b *backupFile) Write(p []byte) (int, error) {
	if b.f == nil {
		f, err := os.OpenFile(b.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err != nil {
			return 0, err
		}
		b.f = f
	}
	n, err := b.f.Write(p)
	b.written += n
	if err != nil {
		return n, err
	}
	return n, b.f.Sync()
}

func (b *backupFile) Close() error {
	if b.f == nil {
		return nil
	}
	return b.f.Close()
}

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeInitCmd, storeCheckCmd, storeRepairCmd)
	storeRepairCmd.Flags().StringVar(&backupDir, "backup-dir", ".", "directory for the backup of the corrupted payload")
}

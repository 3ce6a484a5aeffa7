package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var blobCmd = &cobra.Command{
	Use:   "blob",
	Short: "Store and fetch binary objects",
	Long: `Work with blob tables. Uploads compute the SHA-1 digest locally, so
the digest printed by "blob put" is the key for every later operation.`,
}

var blobPutCmd = &cobra.Command{
	Use:   "put <table> <file>",
	Short: "Upload a file into a blob table",
	Args:  cobra.ExactArgs(2),
	RunE:  runBlobPut,
}

var blobGetCmd = &cobra.Command{
	Use:   "get <table> <digest>",
	Short: "Download a blob",
	Args:  cobra.ExactArgs(2),
	RunE:  runBlobGet,
}

var blobExistsCmd = &cobra.Command{
	Use:   "exists <table> <digest>",
	Short: "Check whether a blob is stored",
	Args:  cobra.ExactArgs(2),
	RunE:  runBlobExists,
}

var blobDeleteCmd = &cobra.Command{
	Use:   "delete <table> <digest>",
	Short: "Delete a blob",
	Args:  cobra.ExactArgs(2),
	RunE:  runBlobDelete,
}

func init() {
	blobCmd.AddCommand(blobPutCmd)
	blobCmd.AddCommand(blobGetCmd)
	blobCmd.AddCommand(blobExistsCmd)
	blobCmd.AddCommand(blobDeleteCmd)

	blobGetCmd.Flags().StringP("output", "o", "", "Write the blob to a file instead of stdout")
}

func runBlobPut(cmd *cobra.Command, args []string) error {
	table, path := args[0], args[1]

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	c, cleanup, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := runContext(cmd)
	defer stop()

	digest, created, err := c.Blob(table).Put(ctx, file)
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	if created {
		fmt.Println(digest)
	} else {
		fmt.Printf("%s (already stored)\n", digest)
	}
	return nil
}

func runBlobGet(cmd *cobra.Command, args []string) error {
	table, digest := args[0], args[1]
	output, _ := cmd.Flags().GetString("output")

	c, cleanup, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := runContext(cmd)
	defer stop()

	body, err := c.BlobGet(ctx, table, digest)
	if err != nil {
		return err
	}
	defer body.Close()

	out := io.Writer(os.Stdout)
	if output != "" {
		file, err := os.Create(output)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}
	if _, err := io.Copy(out, body); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	return nil
}

func runBlobExists(cmd *cobra.Command, args []string) error {
	table, digest := args[0], args[1]

	c, cleanup, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := runContext(cmd)
	defer stop()

	exists, err := c.BlobExists(ctx, table, digest)
	if err != nil {
		return err
	}
	fmt.Println(exists)
	return nil
}

func runBlobDelete(cmd *cobra.Command, args []string) error {
	table, digest := args[0], args[1]

	c, cleanup, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := runContext(cmd)
	defer stop()

	deleted, err := c.BlobDelete(ctx, table, digest)
	if err != nil {
		return err
	}
	if !deleted {
		fmt.Println("not found")
		return nil
	}
	fmt.Println("deleted")
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"
	drive "google.golang.org/api/drive/v3"

	"github.com/tonimelisma/gdrive-go/internal/gdrive"
)

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <file-id> <local-name>",
		Short: "Download a file by ID",
		Long: `Download the content of a Drive file. A relative local name is resolved
against the current directory; an existing file is replaced.`,
		Args: cobra.ExactArgs(2),
		RunE: runGet,
	}
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-path>...",
		Short: "Upload one or more files",
		Long: `Upload local files as new Drive files. Each file is one multipart request;
several files are uploaded concurrently (parallel_uploads).`,
		Args: cobra.MinimumNArgs(1),
		RunE: runPut,
	}

	cmd.Flags().String("name", "", "remote name (single file only; default: local base name)")
	cmd.Flags().String("parent", "", "parent folder ID (default: default_folder)")

	return cmd
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <file-id>",
		Short: "Permanently delete a file (bypasses trash)",
		Args:  cobra.ExactArgs(1),
		RunE:  runRm,
	}

	cmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	return cmd
}

func newRmdirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rmdir <folder-id>",
		Short: "Permanently delete a folder and everything in it",
		Args:  cobra.ExactArgs(1),
		RunE:  runRmdir,
	}

	cmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	return cmd
}

func newMkdirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkdir <name>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runMkdir,
	}

	cmd.Flags().String("parent", "", "parent folder ID (default: default_folder)")

	return cmd
}

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <name>",
		Short: "Find files whose name matches exactly",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}
}

// getOutput is the JSON schema for `get --json`.
type getOutput struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

func runGet(cmd *cobra.Command, args []string) error {
	fileID, localName := args[0], args[1]

	client, _, err := newDriveClient(cmd)
	if err != nil {
		return err
	}

	res, err := client.DownloadFile(cmd.Context(), fileID, localName)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", fileID, err)
	}

	if res.Path == "" {
		return fmt.Errorf("downloading %s: server answered HTTP %d, nothing written", fileID, res.Response.StatusCode)
	}

	var size int64
	if info, statErr := os.Stat(res.Path); statErr == nil {
		size = info.Size()
	}

	if flagJSON {
		return printJSON(cmd, getOutput{ID: fileID, Path: res.Path, Size: size})
	}

	statusf(cmd, "Downloaded %s to %s (%s)\n", fileID, res.Path, formatSize(size))

	return nil
}

// putOutput is one element of the JSON array printed by `put --json`.
type putOutput struct {
	LocalPath string `json:"local_path"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
}

// uploadName is the default remote name for a local path: its base name in
// Unicode NFC, so names from NFD filesystems (macOS) match what users type.
func uploadName(localPath string) string {
	return norm.NFC.String(filepath.Base(localPath))
}

func runPut(cmd *cobra.Command, args []string) error {
	name, err := cmd.Flags().GetString("name")
	if err != nil {
		return err
	}

	parent, err := cmd.Flags().GetString("parent")
	if err != nil {
		return err
	}

	if name != "" && len(args) > 1 {
		return errors.New("--name can only be used with a single file")
	}

	if parent == "" {
		parent = resolvedCfg.DefaultFolder
	}

	client, _, err := newDriveClient(cmd)
	if err != nil {
		return err
	}

	results := make([]putOutput, len(args))

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(resolvedCfg.ParallelUploads)

	for i, localPath := range args {
		g.Go(func() error {
			remoteName := name
			if remoteName == "" {
				remoteName = uploadName(localPath)
			}

			resp, upErr := client.UploadFile(ctx, remoteName, localPath, parent)
			if upErr != nil {
				return fmt.Errorf("uploading %s: %w", localPath, upErr)
			}

			f, decErr := resp.File()
			if decErr != nil {
				return fmt.Errorf("uploading %s: %w", localPath, decErr)
			}

			var size int64
			if info, statErr := os.Stat(localPath); statErr == nil {
				size = info.Size()
			}

			results[i] = putOutput{LocalPath: localPath, ID: f.Id, Name: remoteName, Size: size}
			statusf(cmd, "Uploaded %s as %q (%s, id %s)\n", localPath, remoteName, formatSize(size), f.Id)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if flagJSON {
		return printJSON(cmd, results)
	}

	return nil
}

// confirmDelete asks before a permanent deletion unless --yes was given.
// Without a terminal there is nobody to ask, so --yes is required.
func confirmDelete(cmd *cobra.Command, what string) (bool, error) {
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return false, err
	}

	if yes {
		return true, nil
	}

	if !stdinInteractive() {
		return false, errors.New("refusing to delete without --yes when stdin is not a terminal")
	}

	return defaultPrompter.Confirm(fmt.Sprintf("Permanently delete %s?", what), false)
}

// deleteFunc is DeleteFile or DeleteFolder in method-expression form.
type deleteFunc func(*gdrive.Client, context.Context, string) (*gdrive.Response, error)

// deleteOutput is the JSON schema for `rm --json` and `rmdir --json`.
type deleteOutput struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

func runRm(cmd *cobra.Command, args []string) error {
	return runDelete(cmd, args[0], "file", (*gdrive.Client).DeleteFile)
}

func runRmdir(cmd *cobra.Command, args []string) error {
	return runDelete(cmd, args[0], "folder", (*gdrive.Client).DeleteFolder)
}

func runDelete(cmd *cobra.Command, id, kind string, del deleteFunc) error {
	ok, err := confirmDelete(cmd, kind+" "+id)
	if err != nil {
		return err
	}

	if !ok {
		statusf(cmd, "Aborted.\n")

		if flagJSON {
			return printJSON(cmd, deleteOutput{ID: id})
		}

		return nil
	}

	client, _, err := newDriveClient(cmd)
	if err != nil {
		return err
	}

	if _, err := del(client, cmd.Context(), id); err != nil {
		return fmt.Errorf("deleting %s %s: %w", kind, id, err)
	}

	if flagJSON {
		return printJSON(cmd, deleteOutput{ID: id, Deleted: true})
	}

	statusf(cmd, "Deleted %s %s\n", kind, id)

	return nil
}

func runMkdir(cmd *cobra.Command, args []string) error {
	parent, err := cmd.Flags().GetString("parent")
	if err != nil {
		return err
	}

	if parent == "" {
		parent = resolvedCfg.DefaultFolder
	}

	client, _, err := newDriveClient(cmd)
	if err != nil {
		return err
	}

	resp, err := client.CreateFolder(cmd.Context(), args[0], parent)
	if err != nil {
		return fmt.Errorf("creating folder %q: %w", args[0], err)
	}

	f, err := resp.File()
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(cmd, f)
	}

	statusf(cmd, "Created folder %q in %s\n", args[0], parent)
	fmt.Fprintln(cmd.OutOrStdout(), f.Id)

	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	client, _, err := newDriveClient(cmd)
	if err != nil {
		return err
	}

	resp, err := client.SearchFile(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("searching for %q: %w", args[0], err)
	}

	list, err := resp.FileList()
	if err != nil {
		return err
	}

	if flagJSON {
		files := list.Files
		if files == nil {
			files = []*drive.File{}
		}

		return printJSON(cmd, files)
	}

	if len(list.Files) == 0 {
		statusf(cmd, "No files named %q.\n", args[0])

		return nil
	}

	printFilesTable(cmd.OutOrStdout(), list.Files)

	if list.IncompleteSearch {
		statusf(cmd, "Warning: Drive reported an incomplete search; results may be partial.\n")
	}

	return nil
}

// updriftctl is the operator CLI for an updrift server: it registers apps,
// publishes versions and incremental packages, and exercises the client
// path (update checks and resumable downloads) for verification.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/updrift/updrift/internal/shared/types"
)

var serverURL string

func main() {
	root := &cobra.Command{
		Use:           "updriftctl",
		Short:         "Operator CLI for an updrift update-distribution server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8600", "updrift server base URL")

	root.AddCommand(
		newRegisterCmd(),
		newAppsCmd(),
		newVersionsCmd(),
		newPublishCmd(),
		newPublishIncrementalCmd(),
		newCheckCmd(),
		newDownloadCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func client() *resty.Client {
	return resty.New().
		SetBaseURL(serverURL).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetTimeout(5 * time.Minute)
}

// apiError decodes the server's {"error": "..."} body.
type apiError struct {
	Error string `json:"error"`
}

func checkResponse(resp *resty.Response, apiErr *apiError) error {
	if resp.IsSuccess() {
		return nil
	}
	if apiErr != nil && apiErr.Error != "" {
		return fmt.Errorf("%s: %s", resp.Status(), apiErr.Error)
	}
	return fmt.Errorf("%s", resp.Status())
}

func newRegisterCmd() *cobra.Command {
	var name, description, publisher string
	cmd := &cobra.Command{
		Use:   "register <app-id>",
		Short: "Register (or re-register) an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var apiErr apiError
			resp, err := client().R().
				SetBody(map[string]string{
					"app_id":      args[0],
					"name":        name,
					"description": description,
					"publisher":   publisher,
				}).
				SetError(&apiErr).
				Post("/apps")
			if err != nil {
				return err
			}
			if err := checkResponse(resp, &apiErr); err != nil {
				return err
			}
			fmt.Printf("registered %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&publisher, "publisher", "", "publisher")
	return cmd
}

func newAppsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "List registered applications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Apps []types.AppInfo `json:"apps"`
			}
			var apiErr apiError
			resp, err := client().R().SetResult(&out).SetError(&apiErr).Get("/apps")
			if err != nil {
				return err
			}
			if err := checkResponse(resp, &apiErr); err != nil {
				return err
			}
			for _, app := range out.Apps {
				fmt.Printf("%-24s %s\n", app.AppID, app.Name)
			}
			return nil
		},
	}
}

func newVersionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions <app-id>",
		Short: "List an app's published versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Versions []types.VersionInfo `json:"versions"`
			}
			var apiErr apiError
			resp, err := client().R().SetResult(&out).SetError(&apiErr).
				Get(fmt.Sprintf("/apps/%s/versions", args[0]))
			if err != nil {
				return err
			}
			if err := checkResponse(resp, &apiErr); err != nil {
				return err
			}
			for _, v := range out.Versions {
				marker := " "
				if v.IsLatest {
					marker = "*"
				}
				fmt.Printf("%s %-10s %s  %s\n", marker, v.Version, v.VersionID, v.ReleasedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newPublishCmd() *cobra.Command {
	var version, notes, file string
	cmd := &cobra.Command{
		Use:   "publish <app-id>",
		Short: "Publish a version with its full package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Version types.VersionInfo       `json:"version"`
				Package types.UpdatePackageInfo `json:"package"`
			}
			var apiErr apiError
			resp, err := client().R().
				SetFile("package", file).
				SetFormData(map[string]string{
					"version":       version,
					"release_notes": notes,
				}).
				SetResult(&out).
				SetError(&apiErr).
				Post(fmt.Sprintf("/apps/%s/versions", args[0]))
			if err != nil {
				return err
			}
			if err := checkResponse(resp, &apiErr); err != nil {
				return err
			}
			fmt.Printf("published %s %s (%s, sha256 %s)\n",
				args[0], out.Version.Version,
				humanize.IBytes(uint64(out.Package.Size)),
				out.Package.Checksum[:12],
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "version to publish (major.minor.build)")
	cmd.Flags().StringVar(&notes, "notes", "", "release notes")
	cmd.Flags().StringVar(&file, "file", "", "package file")
	cmd.MarkFlagRequired("version")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newPublishIncrementalCmd() *cobra.Command {
	var sourceID, targetID, file string
	cmd := &cobra.Command{
		Use:   "publish-incremental <app-id>",
		Short: "Publish an incremental patch between two published versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Package types.UpdatePackageInfo `json:"package"`
			}
			var apiErr apiError
			resp, err := client().R().
				SetFile("package", file).
				SetFormData(map[string]string{
					"source_version_id": sourceID,
					"target_version_id": targetID,
				}).
				SetResult(&out).
				SetError(&apiErr).
				Post(fmt.Sprintf("/apps/%s/packages/incremental", args[0]))
			if err != nil {
				return err
			}
			if err := checkResponse(resp, &apiErr); err != nil {
				return err
			}
			fmt.Printf("published incremental %s (%s)\n",
				out.Package.PackageID, humanize.IBytes(uint64(out.Package.Size)))
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceID, "source-version-id", "", "source version id")
	cmd.Flags().StringVar(&targetID, "target-version-id", "", "target version id")
	cmd.Flags().StringVar(&file, "file", "", "patch file")
	cmd.MarkFlagRequired("source-version-id")
	cmd.MarkFlagRequired("target-version-id")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newCheckCmd() *cobra.Command {
	var current string
	cmd := &cobra.Command{
		Use:   "check <app-id>",
		Short: "Run a fresh update check",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := types.ParseVersion(current)
			if err != nil {
				return err
			}
			var out types.UpdateResponse
			var apiErr apiError
			resp, err := client().R().
				SetBody(types.UpdateRequest{AppID: args[0], CurrentVersion: version}).
				SetResult(&out).
				SetError(&apiErr).
				Post("/updates/check")
			if err != nil {
				return err
			}
			if err := checkResponse(resp, &apiErr); err != nil {
				return err
			}
			if !out.HasUpdate {
				fmt.Println("up to date")
				return nil
			}
			fmt.Printf("update available: %s\n", out.LatestVersion.Version)
			if out.SuggestedPackage != nil {
				fmt.Printf("suggested: %s %s (%s)\n",
					out.SuggestedPackage.Type,
					out.SuggestedPackage.PackageID,
					humanize.IBytes(uint64(out.TotalSize)),
				)
			}
			for _, p := range out.AvailablePackages {
				fmt.Printf("available: %s %s (%s)\n", p.Type, p.PackageID, humanize.IBytes(uint64(p.Size)))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&current, "current", "", "client's current version")
	cmd.MarkFlagRequired("current")
	return cmd
}

func newDownloadCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "download <package-id>",
		Short: "Download a package, resuming a partial file if present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return download(args[0], out)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output file")
	cmd.MarkFlagRequired("out")
	return cmd
}

func download(packageID, out string) error {
	var offset int64
	if fi, err := os.Stat(out); err == nil {
		offset = fi.Size()
	}

	// Confirm the continuation offset; the server resets stale offsets.
	var check types.UpdateResponse
	var apiErr apiError
	resp, err := client().R().
		SetBody(types.UpdateRequest{PackageID: packageID, FileOffset: offset}).
		SetResult(&check).
		SetError(&apiErr).
		Post("/updates/check")
	if err != nil {
		return err
	}
	if err := checkResponse(resp, &apiErr); err != nil {
		return err
	}
	if !check.HasUpdate || check.SuggestedPackage == nil {
		return fmt.Errorf("package %s not available", packageID)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if check.ConfirmedOffset == 0 {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(out, flags, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	dl, err := client().R().
		SetHeader("Range", fmt.Sprintf("bytes=%d-", check.ConfirmedOffset)).
		SetDoNotParseResponse(true).
		Get(fmt.Sprintf("/packages/%s/download", packageID))
	if err != nil {
		return err
	}
	body := dl.RawBody()
	defer body.Close()
	if dl.StatusCode() >= 400 {
		return fmt.Errorf("download failed: %s", dl.Status())
	}

	n, err := io.Copy(f, body)
	if err != nil {
		return fmt.Errorf("transfer interrupted after %s: %w", humanize.IBytes(uint64(n)), err)
	}

	if err := verify(out, check.SuggestedPackage.Checksum); err != nil {
		return err
	}
	fmt.Printf("downloaded %s (%s, checksum ok)\n", out, humanize.IBytes(uint64(check.TotalSize)))
	return nil
}

// verify recomputes the sha256 over the downloaded bytes; the server never
// re-verifies after publish, so the client must.
func verify(path, want string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return err
	}
	got := hex.EncodeToString(hasher.Sum(nil))
	if got != want {
		return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
	}
	return nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/minio/selfupdate"
	"github.com/spf13/cobra"

	"github.com/lacquerai/cortex/internal/style"
)

const (
	updateCacheFile = ".cortex/update_cache.json"
	cacheExpiry     = 2 * time.Hour
)

var githubAPIURL = "https://api.github.com/repos/lacquerai/cortex/releases/latest"

type UpdateInfo struct {
	LastChecked   time.Time `json:"last_checked"`
	LatestVersion string    `json:"latest_version"`
	CurrentIsOld  bool      `json:"current_is_old"`
	DownloadURL   string    `json:"download_url"`
}

type GitHubRelease struct {
	TagName string `json:"tag_name"`
	Assets  []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update cortex to the latest version",
	Long: `Update cortex to the latest release published on GitHub.

The binary for the current platform is downloaded and swapped in for the
running executable. A failed swap restores the previous binary.
`,
	Example: `
  cortex update           # Update to latest version
  cortex update --check   # Only check for updates without updating
  cortex update --force   # Reinstall even if already on the latest version`,
	Run: func(cmd *cobra.Command, args []string) {
		checkOnly, _ := cmd.Flags().GetBool("check")
		force, _ := cmd.Flags().GetBool("force")

		if checkOnly {
			checkForUpdate(cmd, true)
			return
		}

		performUpdate(cmd, force)
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().Bool("check", false, "only check for updates without updating")
	updateCmd.Flags().Bool("force", false, "force update even if already on latest version")
}

// checkForUpdate returns the cached release information while it is fresh
// and asks GitHub otherwise. With verbose set the outcome is printed.
func checkForUpdate(cmd *cobra.Command, verbose bool) *UpdateInfo {
	updateInfo := loadUpdateCache()
	if updateInfo == nil || time.Since(updateInfo.LastChecked) >= cacheExpiry {
		latest, downloadURL, err := fetchLatestVersion()
		if err != nil {
			if verbose {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s Failed to check for updates: %s\n", style.ErrorIcon(), err)
			}
			return nil
		}

		updateInfo = &UpdateInfo{
			LastChecked:   time.Now(),
			LatestVersion: latest,
			CurrentIsOld:  isNewer(Version, latest),
			DownloadURL:   downloadURL,
		}
		saveUpdateCache(updateInfo)
	}

	if verbose {
		if updateInfo.CurrentIsOld {
			fmt.Fprintf(cmd.OutOrStdout(), "%s A newer version (%s) is available!\n", style.InfoIcon(), updateInfo.LatestVersion)
			fmt.Fprintf(cmd.OutOrStdout(), "Run 'cortex update' to upgrade.\n")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s You are running the latest version (%s)\n", style.SuccessIcon(), Version)
		}
	}

	return updateInfo
}

// isNewer reports whether latest is a later release than current. Versions
// that are not semver compare by string, and a dev build is never outdated.
func isNewer(current, latest string) bool {
	currentSemver, err1 := semver.NewVersion(normalizeVersion(current))
	latestSemver, err2 := semver.NewVersion(normalizeVersion(latest))
	if err1 == nil && err2 == nil {
		return currentSemver.LessThan(latestSemver)
	}
	return current != "dev" && normalizeVersion(current) != normalizeVersion(latest)
}

// performUpdate downloads the latest release and swaps it in for the
// running binary.
func performUpdate(cmd *cobra.Command, force bool) {
	updateInfo := checkForUpdate(cmd, false)
	if updateInfo == nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s Failed to check for updates\n", style.ErrorIcon())
		return
	}

	if !updateInfo.CurrentIsOld && !force {
		fmt.Fprintf(cmd.OutOrStdout(), "%s You are already running the latest version (%s)\n", style.SuccessIcon(), Version)
		return
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s Downloading cortex %s...\n", style.InfoIcon(), updateInfo.LatestVersion)

	if err := applyUpdate(updateInfo.DownloadURL, selfupdate.Options{}); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s Failed to update: %s\n", style.ErrorIcon(), err)
		return
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s Successfully updated to cortex %s!\n", style.SuccessIcon(), updateInfo.LatestVersion)
}

// fetchLatestVersion gets the latest version from GitHub API
func fetchLatestVersion() (version, downloadURL string, err error) {
	resp, err := http.Get(githubAPIURL)
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch release info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var release GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", "", fmt.Errorf("failed to decode release info: %w", err)
	}

	assetName := fmt.Sprintf("cortex_%s_%s", runtime.GOOS, runtime.GOARCH)
	if runtime.GOOS == "windows" {
		assetName += ".exe"
	}

	for _, asset := range release.Assets {
		if strings.Contains(asset.Name, assetName) {
			return release.TagName, asset.BrowserDownloadURL, nil
		}
	}

	return "", "", fmt.Errorf("no binary found for platform %s/%s", runtime.GOOS, runtime.GOARCH)
}

// applyUpdate streams the binary at url over the target in opts, the
// running executable by default. A failed swap is rolled back.
func applyUpdate(url string, opts selfupdate.Options) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to download binary: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	if err := selfupdate.Apply(resp.Body, opts); err != nil {
		if rerr := selfupdate.RollbackError(err); rerr != nil {
			return fmt.Errorf("failed to roll back after a bad update: %w", rerr)
		}
		return fmt.Errorf("failed to replace binary: %w", err)
	}
	return nil
}

// normalizeVersion removes 'v' prefix from version strings
func normalizeVersion(version string) string {
	return strings.TrimPrefix(version, "v")
}

// loadUpdateCache loads cached update information
func loadUpdateCache() *UpdateInfo {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	cacheFile := filepath.Join(homeDir, updateCacheFile)
	data, err := os.ReadFile(cacheFile)
	if err != nil {
		return nil
	}

	var updateInfo UpdateInfo
	if err := json.Unmarshal(data, &updateInfo); err != nil {
		return nil
	}

	return &updateInfo
}

// saveUpdateCache saves update information to cache
func saveUpdateCache(updateInfo *UpdateInfo) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return
	}

	os.MkdirAll(filepath.Dir(filepath.Join(homeDir, updateCacheFile)), 0755)

	cacheFile := filepath.Join(homeDir, updateCacheFile)
	data, err := json.MarshalIndent(updateInfo, "", "  ")
	if err != nil {
		return
	}

	os.WriteFile(cacheFile, data, 0644)
}

// ShouldShowUpdateNotification checks if we should show an update notification
// This is called from the root command to show notifications on CLI operations
func ShouldShowUpdateNotification() *UpdateInfo {
	updateInfo := loadUpdateCache()

	// If no cache exists or cache is expired, don't show notification
	// (to avoid blocking CLI operations with network calls)
	if updateInfo == nil || time.Since(updateInfo.LastChecked) > cacheExpiry {
		return nil
	}

	if updateInfo.CurrentIsOld {
		return updateInfo
	}

	return nil
}

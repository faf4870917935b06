package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Dispatch quotas
	DailyLimit         int // Max automated downloads per calendar day
	PerTaskLimit       int // Max automated downloads per archiver pass
	DurationLimitSplit int // Seconds; dispatching a video at least this long halves the remaining per-task budget

	// Download
	DownloadSpeedRateLimit  int    // Bytes per second, 0 disables
	VideoDownloadFormat     string // Format selector template; {quality} is substituted
	VideoDownloadFormatBest string // Format selector used when quality=0
	MediaCache              string // Scratch directory downloads land in
	MediaHardlink           bool   // Prefer hardlinking from cache into storage
	DeleteDownloadCache     bool
	SaveInfoJSONFile        bool
	DefaultQuality          int

	// CookieFile is attached to provider calls for channels flagged
	// needs_cookies.
	CookieFile string
	// QualityFixes overrides the provider height-quirk table when non-empty
	QualityFixes map[int]int

	// Scheduler
	CrontabCheckInterval          int // Minutes between ticker passes
	CrontabCheckIntervalMaxInDays int // Catch-up window ceiling
	AutomatedCrontabCatchup       bool
	CronDefaultSelection          string // Pipe-separated hour-range templates for the daily balancer

	// Download error handling
	VideoDownloadErrorAttempts      int // Total attempts before the pipeline gives up
	VideoDownloadErrorWaitPeriod    int // Minutes before the archiver retries an erroring video
	VideoDownloadErrorDailyAttempts int // Errors in 24h that force quality=0
	VideoLiveDownloadRetryHours     int

	// Privacy status revalidation
	PrivacyStatusCheckMinAge            int // Days
	PrivacyStatusCheckMaxCheckPerVideo  int
	PrivacyStatusCheckHoursPerDay       int
	PrivacyStatusCheckForceCheckPerCall int // Overrides the computed per-call budget when > 0

	// Proxies
	Proxies        []string
	ProxiesDefault string
	ProxyPolicy    string // Registered proxy-policy name; empty uses the built-in attempt-indexed policy

	// Comments
	CommentsTotalMaxComments    int
	CommentsMaxParents          int
	CommentsMaxReplies          int
	CommentsMaxRepliesPerThread int
	CommentsSorting             string

	// SponsorBlock
	LoadSponsorblockDataOnDownload           bool
	LoadSponsorblockDataOnUpdateVideoDetails bool
	SponsorblockAPIURL                       string

	// File layout
	ChannelDirSchema                 string
	VideoDirSchema                   string
	VideoFileSchema                  string
	StoreVideosInSeparateDirectories bool
	StoreVideosByYearSeparation      bool
	MediaRoot                        string

	// Transcoding policy hook (registered name; empty uses the built-in)
	ConvertPolicy string

	// Monthly maintenance toggles
	MonthlyChannelUpdateBanners    bool
	MonthlyChannelRebalance        bool
	MonthlyVideoConfirmFilenames   bool
	MonthlyVideoClearFormats       bool
	MonthlyChannelGenerateCoverArt bool

	// Workers
	WorkersGeneral   int
	WorkersTranscode int

	// External binaries (empty resolves from PATH)
	YTDLPBinary  string
	FFmpegBinary string

	// Server
	ServerPort string

	// Paths
	DatabaseFile string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	setDefaults()

	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "archivarr")
	} else {
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config := &Config{
		DailyLimit:         viper.GetInt("DAILY_LIMIT"),
		PerTaskLimit:       viper.GetInt("PER_TASK_LIMIT"),
		DurationLimitSplit: viper.GetInt("DURATION_LIMIT_SPLIT"),

		DownloadSpeedRateLimit:  viper.GetInt("DOWNLOAD_SPEED_RATE_LIMIT"),
		VideoDownloadFormat:     viper.GetString("VIDEO_DOWNLOAD_FORMAT"),
		VideoDownloadFormatBest: viper.GetString("VIDEO_DOWNLOAD_FORMAT_BEST"),
		MediaCache:              viper.GetString("MEDIA_CACHE"),
		MediaHardlink:           viper.GetBool("MEDIA_HARDLINK"),
		DeleteDownloadCache:     viper.GetBool("DELETE_DOWNLOAD_CACHE"),
		SaveInfoJSONFile:        viper.GetBool("SAVE_INFO_JSON_FILE"),
		DefaultQuality:          viper.GetInt("DEFAULT_QUALITY"),
		CookieFile:              viper.GetString("COOKIE_FILE"),
		QualityFixes:            parseQualityFixes(viper.GetString("QUALITY_FIX_TABLE")),

		CrontabCheckInterval:          viper.GetInt("CRONTAB_CHECK_INTERVAL"),
		CrontabCheckIntervalMaxInDays: viper.GetInt("CRONTAB_CHECK_INTERVAL_MAX_IN_DAYS"),
		AutomatedCrontabCatchup:       viper.GetBool("AUTOMATED_CRONTAB_CATCHUP"),
		CronDefaultSelection:          viper.GetString("CRON_DEFAULT_SELECTION"),

		VideoDownloadErrorAttempts:      viper.GetInt("VIDEO_DOWNLOAD_ERROR_ATTEMPTS"),
		VideoDownloadErrorWaitPeriod:    viper.GetInt("VIDEO_DOWNLOAD_ERROR_WAIT_PERIOD"),
		VideoDownloadErrorDailyAttempts: viper.GetInt("VIDEO_DOWNLOAD_ERROR_DAILY_ATTEMPTS"),
		VideoLiveDownloadRetryHours:     viper.GetInt("VIDEO_LIVE_DOWNLOAD_RETRY_HOURS"),

		PrivacyStatusCheckMinAge:            viper.GetInt("PRIVACY_STATUS_CHECK_MIN_AGE"),
		PrivacyStatusCheckMaxCheckPerVideo:  viper.GetInt("PRIVACY_STATUS_CHECK_MAX_CHECK_PER_VIDEO"),
		PrivacyStatusCheckHoursPerDay:       viper.GetInt("PRIVACY_STATUS_CHECK_HOURS_PER_DAY"),
		PrivacyStatusCheckForceCheckPerCall: viper.GetInt("PRIVACY_STATUS_CHECK_FORCE_CHECK_PER_CALL"),

		Proxies:        parseProxies(viper.GetString("PROXIES")),
		ProxiesDefault: viper.GetString("PROXIES_DEFAULT"),
		ProxyPolicy:    viper.GetString("PROXY_POLICY"),

		CommentsTotalMaxComments:    viper.GetInt("COMMENTS_TOTAL_MAX_COMMENTS"),
		CommentsMaxParents:          viper.GetInt("COMMENTS_MAX_PARENTS"),
		CommentsMaxReplies:          viper.GetInt("COMMENTS_MAX_REPLIES"),
		CommentsMaxRepliesPerThread: viper.GetInt("COMMENTS_MAX_REPLIES_PER_THREAD"),
		CommentsSorting:             viper.GetString("COMMENTS_SORTING"),

		LoadSponsorblockDataOnDownload:           viper.GetBool("LOAD_SPONSORBLOCK_DATA_ON_DOWNLOAD"),
		LoadSponsorblockDataOnUpdateVideoDetails: viper.GetBool("LOAD_SPONSORBLOCK_DATA_ON_UPDATE_VIDEO_DETAILS"),
		SponsorblockAPIURL:                       viper.GetString("SPONSORBLOCK_API_URL"),

		ChannelDirSchema:                 viper.GetString("CHANNEL_DIR_SCHEMA"),
		VideoDirSchema:                   viper.GetString("VIDEO_DIR_SCHEMA"),
		VideoFileSchema:                  viper.GetString("VIDEO_FILE_SCHEMA"),
		StoreVideosInSeparateDirectories: viper.GetBool("STORE_VIDEOS_IN_SEPARATE_DIRECTORIES"),
		StoreVideosByYearSeparation:      viper.GetBool("STORE_VIDEOS_BY_YEAR_SEPARATION"),
		MediaRoot:                        viper.GetString("MEDIA_ROOT"),

		ConvertPolicy: viper.GetString("CONVERT_POLICY"),

		MonthlyChannelUpdateBanners:    viper.GetBool("MONTHLY_CHANNEL_UPDATE_BANNERS"),
		MonthlyChannelRebalance:        viper.GetBool("MONTHLY_CHANNEL_REBALANCE"),
		MonthlyVideoConfirmFilenames:   viper.GetBool("MONTHLY_VIDEO_CONFIRM_FILENAMES"),
		MonthlyVideoClearFormats:       viper.GetBool("MONTHLY_VIDEO_CLEAR_FORMATS"),
		MonthlyChannelGenerateCoverArt: viper.GetBool("MONTHLY_CHANNEL_GENERATE_COVER_ART"),

		WorkersGeneral:   viper.GetInt("WORKERS_GENERAL"),
		WorkersTranscode: viper.GetInt("WORKERS_TRANSCODE"),

		YTDLPBinary:  viper.GetString("YTDLP_BINARY"),
		FFmpegBinary: viper.GetString("FFMPEG_BINARY"),

		ServerPort: viper.GetString("SERVER_PORT"),

		DatabaseFile: filepath.Join(configDir, "archivarr.db"),

		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	if config.MediaCache == "" {
		config.MediaCache = filepath.Join(configDir, "cache")
	}

	// Validate required fields
	if config.MediaRoot == "" {
		return nil, fmt.Errorf("MEDIA_ROOT is required")
	}
	if config.CrontabCheckInterval <= 0 {
		return nil, fmt.Errorf("CRONTAB_CHECK_INTERVAL must be positive")
	}
	if strings.TrimSpace(config.CronDefaultSelection) == "" {
		return nil, fmt.Errorf("CRON_DEFAULT_SELECTION is required")
	}

	return config, nil
}

func setDefaults() {
	viper.SetDefault("DAILY_LIMIT", 100)
	viper.SetDefault("PER_TASK_LIMIT", 20)
	viper.SetDefault("DURATION_LIMIT_SPLIT", 1800)

	viper.SetDefault("VIDEO_DOWNLOAD_FORMAT", "bestvideo[height<={quality}]+bestaudio/best[height<={quality}]")
	viper.SetDefault("VIDEO_DOWNLOAD_FORMAT_BEST", "bestvideo+bestaudio/best")
	viper.SetDefault("MEDIA_HARDLINK", true)
	viper.SetDefault("DELETE_DOWNLOAD_CACHE", true)
	viper.SetDefault("SAVE_INFO_JSON_FILE", true)
	viper.SetDefault("DEFAULT_QUALITY", 1080)

	viper.SetDefault("CRONTAB_CHECK_INTERVAL", 10)
	viper.SetDefault("CRONTAB_CHECK_INTERVAL_MAX_IN_DAYS", 2)
	viper.SetDefault("AUTOMATED_CRONTAB_CATCHUP", true)
	viper.SetDefault("CRON_DEFAULT_SELECTION", "M 7-21/4 * * *|M 6-22/4 * * *")

	viper.SetDefault("VIDEO_DOWNLOAD_ERROR_ATTEMPTS", 4)
	viper.SetDefault("VIDEO_DOWNLOAD_ERROR_WAIT_PERIOD", 60)
	viper.SetDefault("VIDEO_DOWNLOAD_ERROR_DAILY_ATTEMPTS", 3)
	viper.SetDefault("VIDEO_LIVE_DOWNLOAD_RETRY_HOURS", 6)

	viper.SetDefault("PRIVACY_STATUS_CHECK_MIN_AGE", 60)
	viper.SetDefault("PRIVACY_STATUS_CHECK_MAX_CHECK_PER_VIDEO", 10)
	viper.SetDefault("PRIVACY_STATUS_CHECK_HOURS_PER_DAY", 20)

	viper.SetDefault("COMMENTS_TOTAL_MAX_COMMENTS", 100)
	viper.SetDefault("COMMENTS_MAX_PARENTS", 50)
	viper.SetDefault("COMMENTS_MAX_REPLIES", 10)
	viper.SetDefault("COMMENTS_MAX_REPLIES_PER_THREAD", 5)
	viper.SetDefault("COMMENTS_SORTING", "top")

	viper.SetDefault("SPONSORBLOCK_API_URL", "https://sponsor.ajay.app")

	viper.SetDefault("CHANNEL_DIR_SCHEMA", "{channel_name}")
	viper.SetDefault("VIDEO_DIR_SCHEMA", "{upload_date} - {title} [{provider_id}]")
	viper.SetDefault("VIDEO_FILE_SCHEMA", "{upload_date} - {title} [{provider_id}]")
	viper.SetDefault("STORE_VIDEOS_IN_SEPARATE_DIRECTORIES", true)

	viper.SetDefault("MONTHLY_CHANNEL_UPDATE_BANNERS", true)
	viper.SetDefault("MONTHLY_CHANNEL_REBALANCE", true)
	viper.SetDefault("MONTHLY_VIDEO_CONFIRM_FILENAMES", false)
	viper.SetDefault("MONTHLY_VIDEO_CLEAR_FORMATS", true)
	viper.SetDefault("MONTHLY_CHANNEL_GENERATE_COVER_ART", false)

	viper.SetDefault("WORKERS_GENERAL", 4)
	viper.SetDefault("WORKERS_TRANSCODE", 1)

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
}

// parseQualityFixes parses "height:quality" pairs, e.g. "352:360,640:720".
// Malformed pairs are dropped.
func parseQualityFixes(raw string) map[int]int {
	if raw == "" {
		return nil
	}
	fixes := make(map[int]int)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		height, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		quality, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil {
			continue
		}
		fixes[height] = quality
	}
	if len(fixes) == 0 {
		return nil
	}
	return fixes
}

// parseProxies accepts a comma or semicolon delimited proxy list
func parseProxies(raw string) []string {
	if raw == "" {
		return nil
	}
	raw = strings.ReplaceAll(raw, ";", ",")
	parts := strings.Split(raw, ",")
	proxies := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			proxies = append(proxies, p)
		}
	}
	return proxies
}

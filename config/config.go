package config

import "os"

// Config holds all environment-driven settings for the engine. Every field
// maps to a STUDIOCOMMAND_* variable; defaults match the production layout
// under /opt/studiocommand/shared.
type Config struct {
	Bind string

	DBPath      string
	CartsDir    string
	TopUpDirDefault string

	FfmpegBin  string
	FfprobeBin string

	WebRTCStun string

	OperatorUser string
	OperatorPass string
	JWTSecret    string

	ProducersFile string
}

func Load() *Config {
	return &Config{
		Bind: getEnv("STUDIOCOMMAND_BIND", "127.0.0.1:3000"),

		DBPath:          getEnv("STUDIOCOMMAND_DB_PATH", "/opt/studiocommand/shared/studiocommand.db"),
		CartsDir:        getEnv("STUDIOCOMMAND_CARTS_DIR", "/opt/studiocommand/shared/carts"),
		TopUpDirDefault: getEnv("STUDIOCOMMAND_TOPUP_DIR", "/opt/studiocommand/shared/data"),

		FfmpegBin:  getEnv("STUDIOCOMMAND_FFMPEG", "ffmpeg"),
		FfprobeBin: getEnv("STUDIOCOMMAND_FFPROBE", "ffprobe"),

		WebRTCStun: getEnv("STUDIOCOMMAND_WEBRTC_STUN", "stun:stun.l.google.com:19302"),

		OperatorUser: getEnv("STUDIOCOMMAND_OPERATOR_USER", ""),
		OperatorPass: getEnv("STUDIOCOMMAND_OPERATOR_PASS", ""),
		JWTSecret:    getEnv("STUDIOCOMMAND_JWT_SECRET", "change-me-in-production-please"),

		ProducersFile: getEnv("STUDIOCOMMAND_PRODUCERS_FILE", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port       string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	JWTSecret  string
	// Token settings
	AccessTokenTTLMinutes string // minutes
	RefreshTokenTTLDays   string // days
	RefreshJWTSecret      string
	AdminEmail            string
	AdminPassword         string
	AdminFullName         string
	// Attendance
	SchoolTimezone          string
	AutoAbsenceGraceMinutes string
	LateThresholdMinutes    string
	QRCodeLength            string
}

func Load() *Config {
	return &Config{
		Port:                    getenv("PORT", "8080"),
		DBHost:                  getenv("DB_HOST", "localhost"),
		DBPort:                  getenv("DB_PORT", "5432"),
		DBUser:                  getenv("DB_USER", "postgres"),
		DBPassword:              getenv("DB_PASSWORD", "postgres"),
		DBName:                  getenv("DB_NAME", "lamms_db"),
		DBSSLMode:               getenv("DB_SSLMODE", "disable"),
		JWTSecret:               getenv("JWT_SECRET", "supersecret_change_me"),
		AccessTokenTTLMinutes:   getenv("ACCESS_TOKEN_TTL_MINUTES", "15"),
		RefreshTokenTTLDays:     getenv("REFRESH_TOKEN_TTL_DAYS", "30"),
		RefreshJWTSecret:        getenv("REFRESH_JWT_SECRET", getenv("JWT_SECRET", "supersecret_change_me")),
		AdminEmail:              getenv("ADMIN_EMAIL", "admin@example.com"),
		AdminPassword:           getenv("ADMIN_PASSWORD", "admin123"),
		AdminFullName:           getenv("ADMIN_FULL_NAME", "Administrator"),
		SchoolTimezone:          getenv("SCHOOL_TIMEZONE", "Asia/Manila"),
		AutoAbsenceGraceMinutes: getenv("AUTO_ABSENCE_GRACE_MINUTES", "15"),
		LateThresholdMinutes:    getenv("LATE_THRESHOLD_MINUTES", "15"),
		QRCodeLength:            getenv("QR_CODE_LENGTH", "10"),
	}
}

// AccessTTL falls back to 15 minutes when the setting is missing or malformed.
func (c *Config) AccessTTL() time.Duration {
	return minutes(c.AccessTokenTTLMinutes, 15)
}

func (c *Config) RefreshTTL() time.Duration {
	n, err := strconv.Atoi(c.RefreshTokenTTLDays)
	if err != nil || n <= 0 {
		n = 30
	}
	return time.Duration(n) * 24 * time.Hour
}

func (c *Config) GracePeriod() time.Duration {
	return minutes(c.AutoAbsenceGraceMinutes, 15)
}

func (c *Config) LateThreshold() time.Duration {
	return minutes(c.LateThresholdMinutes, 15)
}

func (c *Config) QRLength() int {
	n, err := strconv.Atoi(c.QRCodeLength)
	if err != nil || n < 6 {
		return 10
	}
	return n
}

// Location resolves SchoolTimezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.SchoolTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func minutes(raw string, fallback int) time.Duration {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		n = fallback
	}
	return time.Duration(n) * time.Minute
}

func getenv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

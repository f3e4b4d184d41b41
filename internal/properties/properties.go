package properties

import (
	"os"
	"path/filepath"
	"strings"
)

func RootPath() string {
	return os.Getenv("ROOT_PATH")
}

// DataPath joins elem below ROOT_PATH/data.
func DataPath(elem ...string) string {
	return filepath.Join(append([]string{RootPath(), "data"}, elem...)...)
}

func CopernicusClientIDs() []string {
	return splitList(os.Getenv("COPERNICUS_CLIENT_ID"))
}

func CopernicusClientSecrets() []string {
	return splitList(os.Getenv("COPERNICUS_CLIENT_SECRET"))
}

func CopernicusTokenURL() string {
	return os.Getenv("COPERNICUS_TOKEN_URL")
}

func DiscordErrorNotificationUrl() string {
	return os.Getenv("DISCORD_ERROR_NOTIFICATION_URL")
}

func DiscordSuccessNotificationUrl() string {
	return os.Getenv("DISCORD_SUCCESS_NOTIFICATION_URL")
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

package utils

import "os"

// GetEnvDefault は環境変数が未設定か空のときに既定値を返す。
func GetEnvDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

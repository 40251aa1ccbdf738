package util

import (
	"os"
	"strings"
)

func GetEnvironmentVariables() map[string]string {
	environmentVariables := map[string]string{}

	for _, variable := range os.Environ() {
		pair := strings.SplitN(variable, "=", 2)

		environmentVariables[pair[0]] = pair[1]
	}

	return environmentVariables
}

// EnvOrDefault returns the AVLENGINE_ prefixed variable or the fallback when unset
func EnvOrDefault(env map[string]string, name string, fallback string) string {
	if value := env["AVLENGINE_"+name]; value != "" {
		return value
	}
	return fallback
}

package config

import (
	"os"
	"regexp"
	"strconv"

	log "github.com/sirupsen/logrus"
)

var (
	ssidPattern    = regexp.MustCompile(`(?m)^ssid=(.+)$`)
	channelPattern = regexp.MustCompile(`(?m)^channel=([0-9]+)$`)
)

// Reads the SSID and channel back from a rendered hostapd configuration
// file. The status reporter uses this instead of the in-memory Config so
// that it reflects what the running daemon was actually started with.
func ReadHostapdSettings(path string) (ssid string, channel int) {
	text, err := os.ReadFile(path)
	if err != nil {
		log.Warnf("Cannot read hostapd config file: %+v", err)
		return "", 0
	}

	m := ssidPattern.FindStringSubmatch(string(text))
	if m == nil {
		log.Warnf("Cannot find ssid in hostapd config file %s", path)
	} else {
		ssid = m[1]
	}

	m = channelPattern.FindStringSubmatch(string(text))
	if m == nil {
		log.Warnf("Cannot find channel in hostapd config file %s", path)
	} else {
		channel, _ = strconv.Atoi(m[1])
	}

	return ssid, channel
}

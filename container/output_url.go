package container

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/xaionaro-go/secret"
)

func formatFromScheme(scheme string) string {
	switch scheme {
	case "rtmp", "rtmps":
		return "flv"
	case "srt", "udp":
		return "mpegts"
	case "rtsp":
		return "rtsp"
	default:
		return ""
	}
}

// buildOutputURL appends the stream key (if any) to the path and fills in
// the default port of the streaming protocols.
func buildOutputURL(
	urlString string,
	streamKey secret.String,
) (string, string, error) {
	if urlString == "" {
		return "", "", fmt.Errorf("the provided URL is empty")
	}

	u, err := url.Parse(urlString)
	if err != nil {
		return "", "", fmt.Errorf("unable to parse URL '%s': %w", urlString, err)
	}

	if key := streamKey.Get(); key != "" {
		switch {
		case u.Path == "" || u.Path == "/":
			u.Path = "//"
		case !strings.HasSuffix(u.Path, "/"):
			u.Path += "/"
		}
		u.Path += key
	}

	if u.Port() == "" {
		switch u.Scheme {
		case "rtmp":
			u.Host += ":1935"
		case "rtmps":
			u.Host += ":443"
		}
	}

	return u.String(), formatFromScheme(u.Scheme), nil
}

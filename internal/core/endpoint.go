package core

import "net/url"

func parseEndpoint(raw string) (*url.URL, error) {
	return url.Parse(raw)
}

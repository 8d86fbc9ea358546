package soapcalls

import (
	"context"
	"encoding/xml"
	"fmt"
)

// GetFriendlyName returns the friendly name value for a the specific DMR url.
func GetFriendlyName(ctx context.Context, dmr string) (string, error) {
	body, err := fetchDescription(ctx, dmr)
	if err != nil {
		return "", fmt.Errorf("GetFriendlyName: %w", err)
	}

	var fn struct {
		FriendlyName string `xml:"device>friendlyName"`
	}

	if err = xml.Unmarshal(body, &fn); err != nil {
		return "", fmt.Errorf("failed to read response body for GetFriendlyName: %w", err)
	}

	return fn.FriendlyName, nil
}

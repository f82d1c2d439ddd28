// Package sysfs classifies a block device's zoned model by reading its
// "queue/zoned" sysfs attribute.
package sysfs

import (
	"fmt"
	"strings"

	gosysfs "github.com/ungerik/go-sysfs"

	"github.com/zbdcore/zbdadapt/internal/uapi"
)

// ZonedModel reads /sys/dev/block/<major>:<minor>/queue/zoned and classifies
// it as uapi.ModelHostAware, uapi.ModelHostManaged, or uapi.ModelNone.
// Any value other than the two zoned literals is treated as non-zoned,
// matching the kernel's own convention for this attribute.
func ZonedModel(major, minor uint32) (string, error) {
	attr := gosysfs.Object("/sys/dev/block").SubObject(fmt.Sprintf("%d:%d", major, minor)).Attribute("queue/zoned")
	if !attr.Exists() {
		return uapi.ModelNone, nil
	}

	raw, err := attr.Read()
	if err != nil {
		return "", fmt.Errorf("sysfs: read zoned attribute for %d:%d: %w", major, minor, err)
	}

	switch strings.TrimSpace(raw) {
	case uapi.ModelHostAware:
		return uapi.ModelHostAware, nil
	case uapi.ModelHostManaged:
		return uapi.ModelHostManaged, nil
	default:
		return uapi.ModelNone, nil
	}
}

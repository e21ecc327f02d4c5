package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Field is a configuration key with its default.
type Field struct {
	Key         string
	Value       any
	Description string
}

// Env returns the environment variable that sets the field.
func (f Field) Env() string {
	return strings.ToUpper(EnvPrefix + "_" + EnvKeyReplacer.Replace(f.Key))
}

// Fields lists every configuration key in display order.
var Fields = []Field{
	{"server.port", 8080, "HTTP listen port"},
	{"server.base_url", "", "Absolute URL prefix for showreel entries; empty uses relative paths"},
	{"media.root", "public/videos", "Directory holding the video files"},
	{"media.pattern", "Edit {id}.mp4", "Filename pattern mapping a video id to a file"},
	{"media.cache_control", "public, max-age=31536000, immutable", "Cache-Control header for video responses"},
	{"catalog.path", "", "Projects JSON file; empty derives projects from the media directory"},
	{"catalog.debounce", 250 * time.Millisecond, "Delay before reloading a changed catalog file"},
	{"rotation.window", 3, "Number of featured projects"},
	{"rotation.interval", 5 * time.Second, "Featured carousel advance interval"},
	{"cors.origins", []string{"*"}, "Allowed CORS origins"},
	{"contact.smtp.host", "", "SMTP host; empty logs contact messages instead of sending"},
	{"contact.smtp.port", 587, "SMTP port"},
	{"contact.smtp.user", "", "SMTP user and default sender"},
	{"contact.smtp.password", "", "SMTP password; empty reads the OS keyring"},
	{"contact.smtp.from", "", "Sender address; defaults to the SMTP user"},
	{"contact.smtp.to", "", "Owner address; defaults to the sender"},
	{"contact.test_endpoint", false, "Expose GET /api/test-email"},
	{"cluster.raft_id", "", "Raft node id; empty disables clustering"},
	{"cluster.bind", "", "Raft bind address (host:port)"},
	{"cluster.peers", []string{}, "Raft peer addresses including this node"},
	{"verbose", false, "Enable debug logging"},
}

// Describe renders every field with its env variable and current value.
// Secret values are masked.
func Describe(v *viper.Viper) []string {
	return lo.Map(Fields, func(f Field, _ int) string {
		value := v.Get(f.Key)
		if strings.HasSuffix(f.Key, "password") && v.GetString(f.Key) != "" {
			value = "********"
		}
		return fmt.Sprintf("%-24s %-34s %v\n    %s", f.Key, f.Env(), value, f.Description)
	})
}

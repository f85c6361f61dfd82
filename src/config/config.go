package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/magiconair/properties"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

const (
	KeyServerID          = "serverId"
	KeyEnabled           = "enabled"
	KeyErrorTracking     = "submitErrors"
	KeyAdditionalMetrics = "submitAdditionalMetrics"
	KeyDebug             = "debug"

	serverIDLength = 36
)

// ErrEmpty is returned by Reload for a file that holds no keys.
var ErrEmpty = errors.New("metrics config is empty")

const header = `FastStats (https://faststats.dev) gathers basic information for developers,
such as the number of installations and how they are used.
Keeping metrics enabled is recommended, but you can disable them if you prefer.
Enabling metrics does not affect performance,
and all data sent to FastStats is completely anonymous.

If you suspect an application is collecting personal data or bypassing the "enabled" option,
please report it to the FastStats team (https://faststats.dev/abuse).

For more information, visit https://faststats.dev/info`

// Config is the operator-controlled telemetry configuration.
type Config struct {
	ServerID          uuid.UUID
	Enabled           bool
	ErrorTracking     bool
	AdditionalMetrics bool
	Debug             bool

	// FirstRun is set when the configuration file was missing or held no
	// keys before Load.
	FirstRun bool
}

func Default() *Config {
	return &Config{
		ServerID:          uuid.New(),
		Enabled:           true,
		ErrorTracking:     true,
		AdditionalMetrics: true,
	}
}

// Load reads the configuration at path. A missing or empty file is a first
// run: the defaults, with a new server id, are written back. An existing
// file is rewritten only when a key was missing or malformed.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		c := Default()
		c.FirstRun = true
		if err := Save(path, c); err != nil {
			return nil, err
		}
		return c, nil
	case err != nil:
		return nil, errors.Wrap(err, "failed to read metrics config")
	case !info.Mode().IsRegular():
		return nil, errors.Errorf("metrics config %s is not a regular file", path)
	}

	return heal(path, uuid.Nil)
}

// Reload reads the configuration at path after it changed on disk. A
// missing or malformed server id is replaced by serverID rather than a new
// one, and the file is rewritten when anything had to be corrected. A file
// without keys is left alone, as it is most likely still being written.
func Reload(path string, serverID uuid.UUID) (*Config, error) {
	c, dirty, err := read(path, serverID)
	if err != nil {
		return nil, err
	}
	if c.FirstRun {
		return nil, ErrEmpty
	}
	if dirty {
		if err := Save(path, c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func heal(path string, serverID uuid.UUID) (*Config, error) {
	c, dirty, err := read(path, serverID)
	if err != nil {
		return nil, err
	}
	if dirty {
		if err := Save(path, c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Read parses the configuration at path without writing anything.
func Read(path string) (*Config, error) {
	c, _, err := read(path, uuid.Nil)
	return c, err
}

func read(path string, serverID uuid.UUID) (*Config, bool, error) {
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := loader.LoadFile(path)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to read metrics config")
	}
	c, dirty := parse(p, serverID)
	c.FirstRun = p.Len() == 0
	return c, dirty, nil
}

// Parse builds a Config from p. dirty reports whether any value had to be
// defaulted or corrected.
func Parse(p *properties.Properties) (c *Config, dirty bool) {
	return parse(p, uuid.Nil)
}

// parse falls back to serverID, or a new id when it is nil, for a missing
// or malformed server id.
func parse(p *properties.Properties, serverID uuid.UUID) (c *Config, dirty bool) {
	c = Default()
	if serverID != uuid.Nil {
		c.ServerID = serverID
	}

	if raw, ok := p.Get(KeyServerID); ok {
		id, corrected := parseServerID(raw)
		if id == uuid.Nil {
			dirty = true
		} else {
			c.ServerID = id
			dirty = dirty || corrected
		}
	} else {
		dirty = true
	}

	for _, b := range []struct {
		key string
		dst *bool
	}{
		{KeyEnabled, &c.Enabled},
		{KeyErrorTracking, &c.ErrorTracking},
		{KeyAdditionalMetrics, &c.AdditionalMetrics},
		{KeyDebug, &c.Debug},
	} {
		raw, ok := p.Get(b.key)
		if !ok {
			dirty = true
			continue
		}
		v, err := cast.ToBoolE(strings.TrimSpace(raw))
		if err != nil {
			dirty = true
			continue
		}
		*b.dst = v
	}
	return c, dirty
}

// parseServerID trims raw and cuts it to the length of a UUID. corrected
// reports whether that changed the value.
func parseServerID(raw string) (id uuid.UUID, corrected bool) {
	s := strings.TrimSpace(raw)
	if len(s) > serverIDLength {
		s = s[:serverIDLength]
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, true
	}
	return id, s != raw || id.String() != s
}

// Properties renders c in file order.
func (c *Config) Properties() *properties.Properties {
	p := properties.NewProperties()
	p.DisableExpansion = true
	p.WriteSeparator = "="
	p.MustSet(KeyServerID, c.ServerID.String())
	p.MustSet(KeyEnabled, cast.ToString(c.Enabled))
	p.MustSet(KeyErrorTracking, cast.ToString(c.ErrorTracking))
	p.MustSet(KeyAdditionalMetrics, cast.ToString(c.AdditionalMetrics))
	p.MustSet(KeyDebug, cast.ToString(c.Debug))
	return p
}

// Save writes c to path, replacing the file atomically.
func Save(path string, c *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to save metrics config")
	}

	var buf bytes.Buffer
	for _, line := range strings.Split(header, "\n") {
		if line == "" {
			buf.WriteString("#\n")
			continue
		}
		fmt.Fprintf(&buf, "# %s\n", line)
	}
	buf.WriteString("\n")
	if _, err := c.Properties().Write(&buf, properties.UTF8); err != nil {
		return errors.Wrap(err, "failed to save metrics config")
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return errors.Wrap(err, "failed to save metrics config")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to save metrics config")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to save metrics config")
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.Wrap(err, "failed to save metrics config")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "failed to save metrics config")
}

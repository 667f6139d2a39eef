// Package configuration holds the global INI settings shared by every
// catterm component.
package configuration

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LocalOverridePath is merged over the main file when present.
const LocalOverridePath = "settings.local.cfg"

// Config is a two-level section/key map backed by a file.
type Config struct {
	settings map[string]map[string]string
	filePath string
	mu       sync.RWMutex
}

var (
	globalConfig *Config
	once         sync.Once
)

// sectionOrder fixes the layout of generated files.
var sectionOrder = []string{"Interpreter", "Server", "Network", "Authentication", "JWT", "Database", "TLS", "Debug"}

// Initialize loads configPath into the global configuration, creating it with
// defaults if it does not exist. settings.local.cfg overrides it when present.
func Initialize(configPath string) error {
	var err error
	once.Do(func() {
		globalConfig, err = loadConfig(configPath)
		if err != nil {
			return
		}
		if _, statErr := os.Stat(LocalOverridePath); statErr == nil {
			// A broken override file is ignored; the base file still applies.
			_ = globalConfig.mergeFile(LocalOverridePath)
		}
	})
	return err
}

// InitializeDefaults installs an in-memory configuration holding only the
// defaults. Nothing is written to disk.
func InitializeDefaults() {
	c := &Config{settings: make(map[string]map[string]string)}
	c.createDefaultConfig()
	globalConfig = c
}

func loadConfig(filePath string) (*Config, error) {
	config := &Config{
		settings: make(map[string]map[string]string),
		filePath: filePath,
	}
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		config.createDefaultConfig()
		if err := config.saveToFile(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return config, nil
	}

	if err := config.mergeFile(filePath); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) mergeFile(filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	return parseINI(file, c.settings)
}

// parseINI reads section headers and key = value pairs into dst. Later keys
// overwrite earlier ones. Lines outside a section are ignored.
func parseINI(r io.Reader, dst map[string]map[string]string) error {
	scanner := bufio.NewScanner(r)
	currentSection := ""

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			currentSection = strings.TrimSpace(line[1 : len(line)-1])
			if dst[currentSection] == nil {
				dst[currentSection] = make(map[string]string)
			}
			continue
		}

		if currentSection == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		dst[currentSection][strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return scanner.Err()
}

func (c *Config) createDefaultConfig() {
	c.settings["Interpreter"] = map[string]string{
		"default_base":    "dec",
		"prompt":          "> ",
		"echo_errors":     "true",
		"max_line_length": "4096",
	}

	c.settings["Server"] = map[string]string{
		"enable_server":            "false",
		"http_port":                "8080",
		"max_sessions":             "100",
		"session_idle_timeout":     "30m",
		"session_cleanup_interval": "1m",
	}

	c.settings["Network"] = map[string]string{
		"pong_timeout":        "90s",
		"write_wait_timeout":  "10s",
		"max_message_size_kb": "64",
		"max_channel_buffer":  "256",
		"allowed_origins":     "",
		"trusted_proxies":     "",
	}

	// An empty password_hash leaves the server open to guests.
	c.settings["Authentication"] = map[string]string{
		"password_hash":       "",
		"password_hash_cost":  "12",
		"enable_guest_access": "true",
	}

	c.settings["JWT"] = map[string]string{
		"secret_key":             "",
		"token_expiration_hours": "24",
	}

	c.settings["Database"] = map[string]string{
		"enable_transcript": "false",
		"path":              "catterm.db",
		"history_limit":     "100",
	}

	c.settings["TLS"] = map[string]string{
		"enable_tls":           "false",
		"enable_letsencrypt":   "false",
		"generate_self_signed": "false",
		"force_https_redirect": "false",
		"domain":               "",
		"letsencrypt_email":    "",
		"cert_cache_dir":       "certs",
		"cert_file":            "",
		"key_file":             "",
		"https_port":           "8443",
	}

	c.settings["Debug"] = map[string]string{
		"enable_debug_logging": "true",
		"log_level":            "INFO",
		"log_file":             "catterm.log",
		"max_log_size_mb":      "10",
		"log_rotation_count":   "3",
		"log_interpreter":      "false",
		"log_session":          "true",
		"log_websocket":        "false",
		"log_auth":             "true",
		"log_database":         "false",
		"log_security":         "true",
		"log_config":           "true",
		"log_general":          "true",
	}
}

func (c *Config) saveToFile() error {
	if dir := filepath.Dir(c.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	file, err := os.Create(c.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	c.writeTo(w)
	return w.Flush()
}

func (c *Config) writeTo(w io.Writer) {
	fmt.Fprint(w, "; catterm configuration file\n")
	fmt.Fprint(w, "; Generated automatically - modify with care\n")
	fmt.Fprint(w, ";\n\n")

	written := make(map[string]bool)
	writeSection := func(name string) {
		settings, ok := c.settings[name]
		if !ok {
			return
		}
		written[name] = true
		fmt.Fprintf(w, "[%s]\n", name)
		keys := make([]string, 0, len(settings))
		for k := range settings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%s = %s\n", k, settings[k])
		}
		fmt.Fprint(w, "\n")
	}

	for _, section := range sectionOrder {
		writeSection(section)
	}
	// Sections added at runtime go last, alphabetically.
	var extra []string
	for name := range c.settings {
		if !written[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		writeSection(name)
	}
}

// GetString returns the raw value or defaultValue when unset.
func GetString(section, key, defaultValue string) string {
	if globalConfig == nil {
		return defaultValue
	}

	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()

	if sectionMap, exists := globalConfig.settings[section]; exists {
		if value, exists := sectionMap[key]; exists {
			return value
		}
	}
	return defaultValue
}

// GetInt parses an integer value; unparsable values yield defaultValue.
func GetInt(section, key string, defaultValue int) int {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := strconv.Atoi(str); err == nil {
		return value
	}
	return defaultValue
}

// GetBool parses a boolean value.
func GetBool(section, key string, defaultValue bool) bool {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := strconv.ParseBool(str); err == nil {
		return value
	}
	return defaultValue
}

// GetDuration parses a time.Duration such as "30m".
func GetDuration(section, key string, defaultValue time.Duration) time.Duration {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(str); err == nil {
		return value
	}
	return defaultValue
}

// GetList splits a comma separated value, dropping empty entries.
func GetList(section, key string) []string {
	var out []string
	for _, part := range strings.Split(GetString(section, key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SetString sets a value in memory. Call Save to persist it.
func SetString(section, key, value string) {
	if globalConfig == nil {
		return
	}

	globalConfig.mu.Lock()
	defer globalConfig.mu.Unlock()

	if globalConfig.settings[section] == nil {
		globalConfig.settings[section] = make(map[string]string)
	}
	globalConfig.settings[section][key] = value
}

// Save writes the configuration back to the file it was loaded from.
func Save() error {
	if globalConfig == nil {
		return fmt.Errorf("configuration not initialized")
	}
	if globalConfig.filePath == "" {
		return fmt.Errorf("configuration has no backing file")
	}

	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()

	return globalConfig.saveToFile()
}

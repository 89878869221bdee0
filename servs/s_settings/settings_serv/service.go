// Package settings_serv implements the settings store service: it owns the
// settings file, serves read requests, applies updates by dotted path and
// broadcasts change events on the bus.
package settings_serv

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/GregAscolab/python-microservice-test/bus"
	"github.com/GregAscolab/python-microservice-test/codec"
	"github.com/GregAscolab/python-microservice-test/runtime"
	"github.com/GregAscolab/python-microservice-test/settings"
)

// ServiceName is the bus identity of the settings store.
const ServiceName = "settings_service"

const backupTimeFormat = "2006-01-02-15-04-05"

// Service is the settings store worker.
type Service struct {
	path string
	dir  string

	mu  sync.Mutex
	doc settings.Document

	rt *runtime.Runtime
}

// New builds the store around a settings file path.
func New(path string) *Service {
	return &Service{
		path: path,
		dir:  filepath.Dir(path),
	}
}

// Name implements runtime.Logic.
func (s *Service) Name() string { return ServiceName }

// Start loads the document, registers command handlers and installs the
// read subscriptions.
func (s *Service) Start(rt *runtime.Runtime) error {
	s.rt = rt

	doc, err := settings.Load(s.path)
	if err != nil {
		rt.Log.Error().Err(err).Str("path", s.path).Msg("could not load settings, starting empty")
		doc = settings.Document{}
	}
	s.doc = doc

	rt.Router.Register("update_setting", s.handleUpdateSetting)
	rt.Router.Register("update_setting_block", s.handleUpdateSettingBlock)
	rt.Router.Register("import_settings", s.handleImportSettings)
	rt.Router.Register("load_settings_from_file", s.handleLoadFromFile)

	if _, err := rt.Client.Subscribe("settings.get.*", s.handleGet); err != nil {
		return err
	}
	if _, err := rt.Client.Subscribe("settings.list_configs", s.handleListConfigs); err != nil {
		return err
	}

	rt.Log.Info().Str("path", s.path).Msg("settings store ready")
	return nil
}

// Stop implements runtime.Logic. The document is persisted on every
// mutation, so there is nothing left to flush.
func (s *Service) Stop() {}

// handleGet answers settings.get.all with the whole tree and
// settings.get.<key> with the subtree under that top-level key.
func (s *Service) handleGet(msg bus.Msg) {
	if msg.Reply == "" {
		return
	}
	key := msg.Subject[strings.LastIndex(msg.Subject, ".")+1:]

	s.mu.Lock()
	var out any = s.doc
	if key != "all" {
		out = s.doc.Subtree(key)
	}
	data, err := codec.Marshal(out)
	s.mu.Unlock()

	if err != nil {
		s.rt.Log.Error().Err(err).Str("key", key).Msg("could not encode settings reply")
		return
	}
	if err := s.rt.Client.Publish(msg.Reply, data); err != nil {
		s.rt.Log.Warn().Err(err).Msg("could not send settings reply")
	}
}

// handleListConfigs replies with the .json files in the settings directory.
func (s *Service) handleListConfigs(msg bus.Msg) {
	if msg.Reply == "" {
		return
	}
	names := []string{}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.rt.Log.Error().Err(err).Str("dir", s.dir).Msg("could not list settings directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	data, _ := codec.Marshal(names)
	_ = s.rt.Client.Publish(msg.Reply, data)
}

func (s *Service) handleUpdateSetting(args codec.Record) error {
	key := args.GetString("key")
	if key == "" {
		return s.replyError(args, "missing 'key'")
	}

	value := args["value"]
	if str, ok := value.(string); ok {
		value = settings.Coerce(str)
	}

	s.mu.Lock()
	err := s.doc.SetScalar(key, value)
	if err == nil {
		err = s.persistLocked()
	}
	s.mu.Unlock()

	if err != nil {
		s.rt.Log.Error().Err(err).Str("key", key).Msg("update_setting failed")
		return s.replyError(args, err.Error())
	}

	s.broadcastUpdated(key, value)
	return s.replyOK(args)
}

func (s *Service) handleUpdateSettingBlock(args codec.Record) error {
	key := args.GetString("key")
	if key == "" {
		return s.replyError(args, "missing 'key'")
	}
	value := args["value"]

	s.mu.Lock()
	err := s.doc.SetBlock(key, value)
	if err == nil {
		err = s.persistLocked()
	}
	s.mu.Unlock()

	if err != nil {
		s.rt.Log.Error().Err(err).Str("key", key).Msg("update_setting_block failed")
		return s.replyError(args, err.Error())
	}

	s.broadcastUpdated(key, value)
	return s.replyOK(args)
}

func (s *Service) handleImportSettings(args codec.Record) error {
	var doc settings.Document
	switch data := args["data"].(type) {
	case string:
		d, err := settings.Parse([]byte(data))
		if err != nil {
			return s.replyError(args, "invalid settings document: "+err.Error())
		}
		doc = d
	case map[string]any:
		doc = settings.Document(data)
	default:
		return s.replyError(args, "missing 'data'")
	}

	s.mu.Lock()
	err := s.backupLocked()
	if err == nil {
		s.doc = doc
		err = s.persistLocked()
	}
	s.mu.Unlock()

	if err != nil {
		s.rt.Log.Error().Err(err).Msg("import_settings failed")
		return s.replyError(args, err.Error())
	}

	s.broadcastReloaded()
	return s.replyOK(args)
}

func (s *Service) handleLoadFromFile(args codec.Record) error {
	filename := args.GetString("filename")
	if filename == "" {
		return s.replyError(args, "missing 'filename'")
	}
	// Only plain .json names inside the settings directory are allowed.
	if filename != filepath.Base(filename) || !strings.HasSuffix(filename, ".json") {
		return s.replyError(args, "filename must be a .json file in the settings directory")
	}

	doc, err := settings.Load(filepath.Join(s.dir, filename))
	if err != nil {
		s.rt.Log.Error().Err(err).Str("filename", filename).Msg("load_settings_from_file failed")
		return s.replyError(args, err.Error())
	}

	s.mu.Lock()
	s.doc = doc
	err = s.persistLocked()
	s.mu.Unlock()

	if err != nil {
		s.rt.Log.Error().Err(err).Msg("could not persist loaded settings")
		return s.replyError(args, err.Error())
	}

	s.broadcastReloaded()
	return s.replyOK(args)
}

// persistLocked writes the tree through to disk; callers hold s.mu.
func (s *Service) persistLocked() error {
	return s.doc.Save(s.path)
}

// backupLocked renames the current file to <name>.<UTC-timestamp>.bak.
func (s *Service) backupLocked() error {
	if _, err := os.Stat(s.path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	bak := fmt.Sprintf("%s.%s.bak", s.path, time.Now().UTC().Format(backupTimeFormat))
	return os.Rename(s.path, bak)
}

// broadcastUpdated publishes the effective post-coercion value. A persist
// failure never reaches this point, so subscribers only see durable state.
func (s *Service) broadcastUpdated(key string, value any) {
	data, err := codec.Marshal(codec.Record{"key": key, "value": value})
	if err != nil {
		s.rt.Log.Error().Err(err).Msg("could not encode settings.updated")
		return
	}
	if err := s.rt.Client.Publish("settings.updated", data); err != nil {
		s.rt.Log.Warn().Err(err).Msg("could not broadcast settings.updated")
	}
}

func (s *Service) broadcastReloaded() {
	if err := s.rt.Client.Publish("settings.reloaded", nil); err != nil {
		s.rt.Log.Warn().Err(err).Msg("could not broadcast settings.reloaded")
	}
}

func (s *Service) replyOK(args codec.Record) error {
	return s.reply(args, codec.Record{"status": "ok"})
}

func (s *Service) replyError(args codec.Record, msg string) error {
	s.rt.Log.Warn().Str("reason", msg).Msg("settings command rejected")
	return s.reply(args, codec.Record{"status": "error", "message": msg})
}

func (s *Service) reply(args, result codec.Record) error {
	replyTo := args.GetString("reply")
	if replyTo == "" {
		return nil
	}
	data, err := result.Encode()
	if err != nil {
		return err
	}
	return s.rt.Client.Publish(replyTo, data)
}

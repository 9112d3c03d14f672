// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package content

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/stepflow-dev/stepflow/pkg/apperr"
	"github.com/stepflow-dev/stepflow/pkg/workflow"
)

// agentFrontMatter is the YAML header an agent markdown file may carry
// before its body. A file with no front matter uses its base filename as
// the agent name and carries no description.
type agentFrontMatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// FilesystemProvider loads workflow and agent definitions from two
// subdirectories of a root path: workflows/*.yaml (workflow.Definition)
// and agents/*.md (workflow.Agent, optional YAML front matter followed
// by `---` and the agent's prompt body). It watches the root for changes
// via fsnotify and reloads its in-memory cache on any write/create/
// remove/rename event, debounced so a burst of edits reloads once.
type FilesystemProvider struct {
	root          string
	logger        *slog.Logger
	debounceDelay time.Duration

	mu        sync.RWMutex
	workflows map[string]*workflow.Definition
	agents    map[string]*workflow.Agent

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
}

// NewFilesystemProvider constructs a provider rooted at root and performs
// an initial load. A nil logger defaults to slog.Default().
func NewFilesystemProvider(root string, logger *slog.Logger) (*FilesystemProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &FilesystemProvider{
		root:          root,
		logger:        logger,
		debounceDelay: 200 * time.Millisecond,
	}
	if err := p.reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Watch starts the fsnotify watch goroutine; it runs until ctx is
// canceled or Close is called. Calling Watch more than once is a no-op.
func (p *FilesystemProvider) Watch(ctx context.Context) error {
	p.mu.Lock()
	if p.watcher != nil {
		p.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.mu.Unlock()
		return apperr.Wrap(apperr.KindContent, err, "content: creating filesystem watcher")
	}
	for _, dir := range []string{p.workflowsDir(), p.agentsDir()} {
		if _, err := os.Stat(dir); err == nil {
			if err := watcher.Add(dir); err != nil {
				watcher.Close()
				p.mu.Unlock()
				return apperr.Wrap(apperr.KindContent, err, "content: watching %s", dir)
			}
		}
	}
	watchCtx, cancel := context.WithCancel(ctx)
	p.watcher = watcher
	p.cancel = cancel
	p.mu.Unlock()

	go p.watchLoop(watchCtx)
	return nil
}

// Close stops the watch goroutine, if running.
func (p *FilesystemProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watcher == nil {
		return nil
	}
	p.cancel()
	err := p.watcher.Close()
	p.watcher = nil
	return err
}

func (p *FilesystemProvider) watchLoop(ctx context.Context) {
	var debounce *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".yaml") && !strings.HasSuffix(event.Name, ".yml") && !strings.HasSuffix(event.Name, ".md") {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(p.debounceDelay, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("content watcher error", "error", err)
		case <-reload:
			if err := p.reload(); err != nil {
				p.logger.Warn("content reload failed", "error", err)
				continue
			}
			p.logger.Info("content reloaded", "root", p.root)
		}
	}
}

func (p *FilesystemProvider) workflowsDir() string { return filepath.Join(p.root, "workflows") }
func (p *FilesystemProvider) agentsDir() string    { return filepath.Join(p.root, "agents") }

func (p *FilesystemProvider) reload() error {
	workflows, err := loadWorkflows(p.workflowsDir())
	if err != nil {
		return err
	}
	agents, err := loadAgents(p.agentsDir())
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.workflows = workflows
	p.agents = agents
	p.mu.Unlock()
	return nil
}

func loadWorkflows(dir string) (map[string]*workflow.Definition, error) {
	workflows := make(map[string]*workflow.Definition)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return workflows, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindContent, err, "content: reading workflows directory %s", dir)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindContent, err, "content: reading workflow file %s", path)
		}
		var def workflow.Definition
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, apperr.Wrap(apperr.KindContent, err, "content: parsing workflow file %s", path)
		}
		if err := def.Validate(); err != nil {
			return nil, apperr.Wrap(apperr.KindContent, err, "content: invalid workflow definition in %s", path)
		}
		workflows[def.Name] = &def
	}
	return workflows, nil
}

func loadAgents(dir string) (map[string]*workflow.Agent, error) {
	agents := make(map[string]*workflow.Agent)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return agents, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindContent, err, "content: reading agents directory %s", dir)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindContent, err, "content: reading agent file %s", path)
		}

		front, body := splitFrontMatter(string(data))
		name := front.Name
		if name == "" {
			name = strings.TrimSuffix(entry.Name(), ".md")
		}
		agents[name] = &workflow.Agent{
			Name:        name,
			Description: front.Description,
			Content:     body,
		}
	}
	return agents, nil
}

// splitFrontMatter extracts a leading `---\n...\n---\n` YAML block, if
// present, from raw agent markdown. Files without front matter return a
// zero-value header and the entire content as body.
func splitFrontMatter(raw string) (agentFrontMatter, string) {
	const delim = "---"
	if !strings.HasPrefix(raw, delim) {
		return agentFrontMatter{}, raw
	}
	rest := raw[len(delim):]
	end := strings.Index(rest, delim)
	if end < 0 {
		return agentFrontMatter{}, raw
	}

	var front agentFrontMatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &front); err != nil {
		return agentFrontMatter{}, raw
	}
	body := strings.TrimPrefix(rest[end+len(delim):], "\n")
	return front, body
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

// GetWorkflow implements Provider.
func (p *FilesystemProvider) GetWorkflow(name string) (*workflow.Definition, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	def, ok := p.workflows[name]
	if !ok {
		return nil, nil
	}
	return def, nil
}

// GetAgent implements Provider.
func (p *FilesystemProvider) GetAgent(name string) (*workflow.Agent, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	agent, ok := p.agents[name]
	if !ok {
		return nil, nil
	}
	return agent, nil
}

// ListWorkflows implements Provider.
func (p *FilesystemProvider) ListWorkflows() ([]workflow.Summary, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	summaries := make([]workflow.Summary, 0, len(p.workflows))
	for _, def := range p.workflows {
		summaries = append(summaries, def.ToSummary())
	}
	return summaries, nil
}

var _ Provider = (*FilesystemProvider)(nil)

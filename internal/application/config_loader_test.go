package application

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
	"github.com/ahrav/go-concord/internal/testutils"
)

// mockReviewerRegistry implements ports.ReviewerRegistry for loader
// tests. It counts creations and captures the configuration each seat
// received so tests can verify parameter folding and cache behavior.
type mockReviewerRegistry struct {
	mu                sync.Mutex
	reviewerCreations int
	reviserCreations  int
	reviewerConfigs   map[domain.Role]map[string]any
	reviserConfig     map[string]any
	createReviewerErr error
	createReviserErr  error
}

var _ ports.ReviewerRegistry = (*mockReviewerRegistry)(nil)

func newMockReviewerRegistry() *mockReviewerRegistry {
	return &mockReviewerRegistry{
		reviewerConfigs: make(map[domain.Role]map[string]any),
	}
}

// CreateReviewer records the call and returns a mock reviewer bound to
// the requested role, or the configured error.
func (m *mockReviewerRegistry) CreateReviewer(
	reviewerType string,
	role domain.Role,
	config map[string]any,
) (ports.Reviewer, error) {
	m.mu.Lock()
	m.reviewerCreations++
	m.reviewerConfigs[role] = config
	m.mu.Unlock()

	if m.createReviewerErr != nil {
		return nil, m.createReviewerErr
	}
	return testutils.NewMockReviewer(role), nil
}

// CreateReviser records the call and returns a mock reviser, or the
// configured error.
func (m *mockReviewerRegistry) CreateReviser(config map[string]any) (ports.Reviser, error) {
	m.mu.Lock()
	m.reviserCreations++
	m.reviserConfig = config
	m.mu.Unlock()

	if m.createReviserErr != nil {
		return nil, m.createReviserErr
	}
	return testutils.NewMockReviser(), nil
}

// RegisterReviewerFactory is a no-op for the mock registry.
func (m *mockReviewerRegistry) RegisterReviewerFactory(string, ports.ReviewerFactory) error {
	return nil
}

// SupportedTypes returns the types the loader's validation accepts.
func (m *mockReviewerRegistry) SupportedTypes() []string {
	return []string{"llm", "custom"}
}

func (m *mockReviewerRegistry) creations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reviewerCreations
}

func (m *mockReviewerRegistry) configFor(role domain.Role) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reviewerConfigs[role]
}

// loaderConfigYAML is a complete, valid panel specification used by the
// happy-path, caching, and file-loading tests.
const loaderConfigYAML = `
version: "1.0.0"
metadata:
  name: "storage-design-review"
  description: "Reviews storage layer designs before implementation"
  tags: ["storage", "design"]
  labels:
    team: "platform"
reviewers:
  - role: architect
    type: llm
    model: "openai/gpt-4o"
    parameters:
      temperature: 0.2
  - role: latency_critic
    type: llm
    parameters:
      temperature: 0.0
      max_tokens: 800
  - role: security_guard
    type: llm
    parameters: {}
reviser:
  model: "anthropic/claude-sonnet-4@20250514"
  parameters:
    temperature: 0.4
debate:
  round_limit: 5
  timeout_seconds: 120
  max_concurrency: 2
  invoker:
    max_attempts: 4
    jitter_percent: 0.25
  budget:
    max_calls: 64
`

// TestDebateLoader_LoadFromReader covers the full load path: strict YAML
// decoding, struct and semantic validation, parameter checks, and panel
// construction through the registry.
func TestDebateLoader_LoadFromReader(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		setupMock func(*mockReviewerRegistry)
		wantErr   bool
		errMsg    string
		verify    func(t *testing.T, setup *DebateSetup, registry *mockReviewerRegistry)
	}{
		{
			name: "compiles a complete panel",
			yaml: loaderConfigYAML,
			verify: func(t *testing.T, setup *DebateSetup, registry *mockReviewerRegistry) {
				require.Len(t, setup.Panel.Reviewers, 3)
				assert.Equal(t, domain.RoleArchitect, setup.Panel.Reviewers[0].Role())
				assert.Equal(t, domain.RoleLatencyCritic, setup.Panel.Reviewers[1].Role())
				assert.Equal(t, domain.RoleSecurityGuard, setup.Panel.Reviewers[2].Role())
				assert.NotNil(t, setup.Panel.Reviser)

				assert.Equal(t, 5, setup.Engine.RoundLimit)
				assert.Equal(t, 2*time.Minute, setup.Engine.DebateTimeout)
				assert.Equal(t, 2, setup.Engine.MaxConcurrency)
				assert.Equal(t, 4, setup.Engine.Invoker.MaxAttempts)
				assert.InDelta(t, 0.25, setup.Engine.Invoker.JitterPercent, 1e-9)
				assert.Equal(t, int64(64), setup.Budget.MaxCalls)
			},
		},
		{
			name: "folds seat and reviser model overrides into parameters",
			yaml: loaderConfigYAML,
			verify: func(t *testing.T, setup *DebateSetup, registry *mockReviewerRegistry) {
				architect := registry.configFor(domain.RoleArchitect)
				require.NotNil(t, architect)
				assert.Equal(t, "openai/gpt-4o", architect["model"])
				assert.InDelta(t, 0.2, architect["temperature"], 1e-9)

				critic := registry.configFor(domain.RoleLatencyCritic)
				require.NotNil(t, critic)
				assert.NotContains(t, critic, "model")
				assert.Equal(t, 800, critic["max_tokens"])

				require.NotNil(t, registry.reviserConfig)
				assert.Equal(t, "anthropic/claude-sonnet-4@20250514", registry.reviserConfig["model"])
			},
		},
		{
			name: "rejects unknown fields",
			yaml: `
version: "1.0.0"
metadata:
  name: "typo-config"
judges:
  - role: architect
reviser:
  parameters: {}
`,
			wantErr: true,
			errMsg:  "field judges not found",
		},
		{
			name: "requires a version",
			yaml: `
metadata:
  name: "versionless"
reviewers:
  - role: architect
    type: llm
    parameters: {}
  - role: latency_critic
    type: llm
    parameters: {}
  - role: security_guard
    type: llm
    parameters: {}
reviser:
  parameters: {}
`,
			wantErr: true,
			errMsg:  "Version",
		},
		{
			name:    "rejects a non-semver version",
			yaml:    strings.Replace(loaderConfigYAML, `version: "1.0.0"`, `version: "v1"`, 1),
			wantErr: true,
			errMsg:  "semver",
		},
		{
			name:    "rejects an unknown reviewer type",
			yaml:    strings.Replace(loaderConfigYAML, "type: llm", "type: oracle", 1),
			wantErr: true,
			errMsg:  "oneof",
		},
		{
			name:    "rejects a malformed model specification",
			yaml:    strings.Replace(loaderConfigYAML, `model: "openai/gpt-4o"`, `model: "gpt-4o"`, 1),
			wantErr: true,
			errMsg:  "modelformat",
		},
		{
			name:    "rejects an unknown role",
			yaml:    strings.Replace(loaderConfigYAML, "role: architect", "role: moderator", 1),
			wantErr: true,
			errMsg:  "debaterole",
		},
		{
			name:    "rejects duplicate seats",
			yaml:    strings.Replace(loaderConfigYAML, "role: latency_critic", "role: architect", 1),
			wantErr: true,
			errMsg:  `duplicate reviewer for role "architect"`,
		},
		{
			name: "rejects an incomplete panel",
			yaml: `
version: "1.0.0"
metadata:
  name: "two-seat-panel"
reviewers:
  - role: architect
    type: llm
    parameters: {}
  - role: latency_critic
    type: llm
    parameters: {}
reviser:
  parameters: {}
`,
			wantErr: true,
			errMsg:  `required role "security_guard" missing`,
		},
		{
			name:    "rejects an out-of-range temperature",
			yaml:    strings.Replace(loaderConfigYAML, "temperature: 0.2", "temperature: 5.0", 1),
			wantErr: true,
			errMsg:  "temperature must be between 0 and 2",
		},
		{
			name: "rejects an empty prompt template",
			yaml: strings.Replace(
				loaderConfigYAML,
				"temperature: 0.2",
				`prompt_template: ""`,
				1,
			),
			wantErr: true,
			errMsg:  "prompt_template cannot be empty",
		},
		{
			name: "rejects non-mapping parameters",
			yaml: strings.Replace(
				loaderConfigYAML,
				"parameters:\n      temperature: 0.2",
				"parameters: [1, 2]",
				1,
			),
			wantErr: true,
			errMsg:  "failed to decode parameters",
		},
		{
			name:    "rejects invalid reviser parameters",
			yaml:    strings.Replace(loaderConfigYAML, "temperature: 0.4", "temperature: 9.0", 1),
			wantErr: true,
			errMsg:  "reviser parameter validation failed",
		},
		{
			name:    "rejects a round limit above the cap",
			yaml:    strings.Replace(loaderConfigYAML, "round_limit: 5", "round_limit: 1000", 1),
			wantErr: true,
			errMsg:  "RoundLimit",
		},
		{
			name: "surfaces reviewer construction failures",
			yaml: loaderConfigYAML,
			setupMock: func(m *mockReviewerRegistry) {
				m.createReviewerErr = errors.New("provider credentials rejected")
			},
			wantErr: true,
			errMsg:  "failed to create reviewer architect",
		},
		{
			name: "surfaces reviser construction failures",
			yaml: loaderConfigYAML,
			setupMock: func(m *mockReviewerRegistry) {
				m.createReviserErr = errors.New("provider credentials rejected")
			},
			wantErr: true,
			errMsg:  "failed to create reviser",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := newMockReviewerRegistry()
			if tt.setupMock != nil {
				tt.setupMock(registry)
			}

			loader, err := NewDebateLoader(registry)
			require.NoError(t, err)

			setup, err := loader.LoadFromReader(context.Background(), strings.NewReader(tt.yaml))

			if tt.wantErr {
				require.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
				return
			}

			require.NoError(t, err)
			if tt.verify != nil {
				tt.verify(t, setup, registry)
			}
		})
	}
}

// TestDebateLoader_LoadFromFile verifies file-based loading and the
// sentinel returned for missing configuration files.
func TestDebateLoader_LoadFromFile(t *testing.T) {
	loader, err := NewDebateLoader(newMockReviewerRegistry())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "debate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(loaderConfigYAML), 0o600))

	setup, err := loader.LoadFromFile(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, setup.Panel.Reviewers, 3)

	_, err = loader.LoadFromFile(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConfigNotFound)
}

// TestDebateLoader_Caching verifies that semantically identical
// configurations compile once and that ClearCache forces a rebuild.
func TestDebateLoader_Caching(t *testing.T) {
	registry := newMockReviewerRegistry()
	loader, err := NewDebateLoader(registry)
	require.NoError(t, err)

	first, err := loader.LoadFromReader(context.Background(), strings.NewReader(loaderConfigYAML))
	require.NoError(t, err)

	second, err := loader.LoadFromReader(context.Background(), strings.NewReader(loaderConfigYAML))
	require.NoError(t, err)

	assert.Same(t, first, second, "identical configuration must hit the cache")
	assert.Equal(t, 3, registry.creations(), "panel must be built exactly once")

	// Hashing runs over the parsed configuration, so comments and
	// surrounding whitespace outside parameter blocks do not defeat the
	// cache.
	decorated := "# reviewed by the platform team\n" + loaderConfigYAML + "\n\n"
	third, err := loader.LoadFromReader(context.Background(), strings.NewReader(decorated))
	require.NoError(t, err)
	assert.Same(t, first, third)
	assert.Equal(t, 3, registry.creations())

	loader.ClearCache()

	fourth, err := loader.LoadFromReader(context.Background(), strings.NewReader(loaderConfigYAML))
	require.NoError(t, err)
	assert.NotSame(t, first, fourth, "ClearCache must force recompilation")
	assert.Equal(t, 6, registry.creations())
}

// TestDebateLoader_ConcurrentLoads verifies that simultaneous loads of
// the same configuration share one compilation.
func TestDebateLoader_ConcurrentLoads(t *testing.T) {
	registry := newMockReviewerRegistry()
	loader, err := NewDebateLoader(registry)
	require.NoError(t, err)

	const loaders = 8
	setups := make([]*DebateSetup, loaders)
	errs := make([]error, loaders)

	var wg sync.WaitGroup
	for i := range loaders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			setups[i], errs[i] = loader.LoadFromReader(
				context.Background(),
				strings.NewReader(loaderConfigYAML),
			)
		}()
	}
	wg.Wait()

	for i := range loaders {
		require.NoError(t, errs[i])
		assert.Same(t, setups[0], setups[i])
	}
	assert.Equal(t, 3, registry.creations(), "concurrent loads must share one compilation")
}

// Package browser drives a real Chrome via go-rod to render task pages and
// extract typed form-field records. Task HTML is frequently dynamic (fields
// created by JS after load), so extraction runs against the live DOM rather
// than static markup; nothing outside this package touches the page.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"formeval/internal/field"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Config holds browser configuration.
type Config struct {
	// DebuggerURL attaches to an already-running Chrome instead of
	// launching one.
	DebuggerURL         string   `yaml:"debugger_url"`
	Launch              []string `yaml:"launch"` // binary path plus extra flags
	Headless            bool     `yaml:"headless"`
	ViewportWidth       int      `yaml:"viewport_width"`
	ViewportHeight      int      `yaml:"viewport_height"`
	NavigationTimeoutMs int      `yaml:"navigation_timeout_ms"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		ViewportWidth:       1920,
		ViewportHeight:      1080,
		NavigationTimeoutMs: 30000,
	}
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// Driver owns one Chrome connection and one page, reused across task
// instances. It is not safe for concurrent use; run one Driver per worker.
type Driver struct {
	cfg Config
	log *zap.Logger

	mu         sync.Mutex
	browser    *rod.Browser
	page       *rod.Page
	controlURL string
}

// NewDriver creates a driver; Start must be called before use.
func NewDriver(cfg Config, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{cfg: cfg, log: log}
}

// Start connects to an existing Chrome or launches a new one.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.browser != nil {
		if _, err := d.browser.Version(); err == nil {
			return nil
		}
		d.log.Warn("stale browser connection, reconnecting")
		_ = d.browser.Close()
		d.browser = nil
		d.page = nil
	}

	controlURL := d.cfg.DebuggerURL
	if controlURL == "" && len(d.cfg.Launch) > 0 {
		bin := d.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(d.cfg.Headless)
		for _, rawFlag := range d.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}
	if controlURL == "" {
		url, err := launcher.New().Headless(d.cfg.Headless).Launch()
		if err != nil {
			return fmt.Errorf("no debugger_url and failed to launch: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	d.browser = browser
	d.controlURL = controlURL
	d.log.Info("browser connected", zap.Bool("headless", d.cfg.Headless))
	return nil
}

// Shutdown closes the page and the browser.
func (d *Driver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.page != nil {
		_ = d.page.Close()
		d.page = nil
	}
	var err error
	if d.browser != nil {
		err = d.browser.Close()
		d.browser = nil
	}
	d.controlURL = ""
	return err
}

// currentPage returns the reusable page, creating it on first use.
func (d *Driver) currentPage() (*rod.Page, error) {
	if d.browser == nil {
		return nil, fmt.Errorf("browser not started")
	}
	if d.page != nil {
		return d.page, nil
	}
	page, err := d.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	if d.cfg.ViewportWidth > 0 && d.cfg.ViewportHeight > 0 {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             d.cfg.ViewportWidth,
			Height:            d.cfg.ViewportHeight,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			return nil, fmt.Errorf("set viewport: %w", err)
		}
	}
	d.page = page
	return page, nil
}

// Navigate loads url on the shared page and waits for it to settle.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	page, err := d.currentPage()
	if err != nil {
		return err
	}
	page = page.Context(ctx).Timeout(d.cfg.NavigationTimeout())
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait for %s: %w", url, err)
	}
	return nil
}

// fieldProbe is what the in-page extraction script reports per field.
type fieldProbe struct {
	Tag     string   `json:"tag"`
	Type    string   `json:"type"`
	Values  []string `json:"values"`
	Options []string `json:"options"`
	X       int      `json:"x"`
	Y       int      `json:"y"`
	Visible bool     `json:"visible"`
}

// Radio and checkbox report only checked values; every other kind reports
// raw element values (duplicate-named elements report one value each).
const extractFieldJS = `(name) => {
	const els = Array.from(document.getElementsByName(name))
		.filter(e => ['INPUT', 'SELECT', 'TEXTAREA'].includes(e.tagName));
	if (els.length === 0) return null;
	const el = els[0];
	const tag = el.tagName.toLowerCase();
	const type = tag === 'input' ? (el.getAttribute('type') || 'text') : tag;
	let values;
	if (type === 'radio' || type === 'checkbox') {
		values = els.filter(e => e.checked).map(e => e.value);
	} else {
		values = els.map(e => e.value);
	}
	let options = [];
	if (tag === 'select') {
		options = Array.from(el.options).map(o => o.value);
	} else if (type === 'radio' || type === 'checkbox') {
		options = els.map(e => e.value);
	}
	const rect = el.getBoundingClientRect();
	const style = window.getComputedStyle(el);
	const visible = type !== 'hidden' && rect.width > 0 && rect.height > 0 &&
		style.display !== 'none' && style.visibility !== 'hidden';
	return {tag, type, values, options,
		x: Math.round(rect.x), y: Math.round(rect.y), visible};
}`

// ExtractFields locates each named field on the current page and returns a
// typed record with its resolved values. Fields missing from the live DOM
// are skipped with a warning: batches regularly name columns whose elements
// are only created for other instances.
func (d *Driver) ExtractFields(ctx context.Context, taskName, url string, fieldNames []string, exclude field.ExclusionSet) ([]field.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	page, err := d.currentPage()
	if err != nil {
		return nil, err
	}
	page = page.Context(ctx)

	source, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("page source: %w", err)
	}

	records := make([]field.Record, 0, len(fieldNames))
	for _, name := range fieldNames {
		if name == "" || exclude.Excluded(name) {
			continue
		}

		obj, err := page.Eval(extractFieldJS, name)
		if err != nil {
			return nil, fmt.Errorf("probe field %q: %w", name, err)
		}
		if obj.Value.Nil() {
			d.log.Warn("field not present in DOM",
				zap.String("task", taskName), zap.String("field", name))
			continue
		}

		var probe fieldProbe
		raw, err := json.Marshal(obj.Value.Val())
		if err == nil {
			err = json.Unmarshal(raw, &probe)
		}
		if err != nil {
			return nil, fmt.Errorf("decode probe for %q: %w", name, err)
		}

		kind, err := field.ParseKind(probe.Tag, probe.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}

		records = append(records, field.Record{
			TaskName: taskName,
			URL:      url,
			Name:     name,
			Kind:     kind,
			Position: field.Position{
				X:            probe.X,
				Y:            probe.Y,
				SourceOffset: strings.Index(source, name),
			},
			Values:  probe.Values,
			Options: probe.Options,
			Visible: probe.Visible,
		})
	}
	return records, nil
}

const setValueJS = `(name, value) => {
	const els = Array.from(document.getElementsByName(name));
	if (els.length === 0) return false;
	const el = els[0];
	el.value = value;
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return true;
}`

const checkValueJS = `(name, value) => {
	const els = Array.from(document.getElementsByName(name));
	const el = els.find(e => e.value === value);
	if (!el) return false;
	el.checked = true;
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return true;
}`

// SetValue types value into the named text-like element (also used for
// select and hidden fields, which accept a value assignment directly).
func (d *Driver) SetValue(ctx context.Context, name, value string) error {
	return d.evalAction(ctx, setValueJS, name, value)
}

// Check marks the radio or checkbox option carrying value.
func (d *Driver) Check(ctx context.Context, name, value string) error {
	return d.evalAction(ctx, checkValueJS, name, value)
}

func (d *Driver) evalAction(ctx context.Context, js, name, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	page, err := d.currentPage()
	if err != nil {
		return err
	}
	obj, err := page.Context(ctx).Eval(js, name, value)
	if err != nil {
		return fmt.Errorf("act on field %q: %w", name, err)
	}
	if !obj.Value.Bool() {
		return fmt.Errorf("field %q has no element for value %q", name, value)
	}
	return nil
}

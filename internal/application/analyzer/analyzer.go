// Package analyzer builds a bounded, hierarchical understanding of a
// project: an architecture hypothesis, per-module findings, a dependency
// graph, and an overall confidence score. Work is bounded by the number
// of top-level directories, never by total line count.
package analyzer

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/app"
)

// ArchitectureKind is a candidate shape for the project under analysis
type ArchitectureKind string

const (
	KindMultiRolePipeline ArchitectureKind = "multi-role-pipeline"
	KindService           ArchitectureKind = "service"
	KindFlatLibrary       ArchitectureKind = "flat-library"
	KindUnknown           ArchitectureKind = "unknown"
)

// Phase confidence weights; they sum to 1.0
const (
	phase1Weight = 0.4
	phase2Weight = 0.4
	phase3Weight = 0.2

	// reflectionThreshold triggers the single Phase 1 backtrack
	reflectionThreshold = 0.4

	// maxModules caps Phase 2 work regardless of project size
	maxModules = 12

	// coreInDegree flags a module as core when this many others depend on it
	coreInDegree = 2

	// phase2Parallelism bounds concurrent per-module scans
	phase2Parallelism = 4

	// maxFilesPerModule bounds how many files one module scan reads
	maxFilesPerModule = 64
)

// ModuleFinding is the Phase 2 result for one top-level directory
type ModuleFinding struct {
	Name            string
	Purpose         string
	DependencyCount int
	Confidence      float64
	Core            bool
	imports         map[string]bool
}

// Result is the full analysis output. Confidence 0.0 with a warning,
// never an error, is the answer for an empty or unreadable project.
type Result struct {
	Kind       ArchitectureKind
	Confidence float64
	Modules    []ModuleFinding
	Warnings   []string
}

// Analyzer scans a project through the injected filesystem
type Analyzer struct {
	fs  afero.Fs
	log app.Logger
}

// New creates an Analyzer over the given filesystem
func New(fs afero.Fs, log app.Logger) *Analyzer {
	if log == nil {
		log = app.GetLogger()
	}
	return &Analyzer{fs: fs, log: log}
}

// hypothesis is one candidate architecture kind with its expected signals
type hypothesis struct {
	kind ArchitectureKind
	// dirSignals are top-level directory names that support the kind
	dirSignals []string
	// fileSignals are entry-point or manifest file patterns
	fileSignals []string
}

var hypotheses = []hypothesis{
	{
		kind:        KindMultiRolePipeline,
		dirSignals:  []string{"agents", "roles", "stages", "pipelines", "workers", "prompts"},
		fileSignals: []string{"pipeline", "orchestrat", "workflow"},
	},
	{
		kind:        KindService,
		dirSignals:  []string{"cmd", "api", "server", "handlers", "routes", "migrations"},
		fileSignals: []string{"main", "server", "dockerfile", "docker-compose"},
	},
	{
		kind:        KindFlatLibrary,
		dirSignals:  []string{"pkg", "lib", "src", "examples", "docs"},
		fileSignals: []string{"makefile", "license", "readme"},
	},
}

// Analyze runs all four phases against the project root
func (a *Analyzer) Analyze(ctx context.Context, projectRoot string) *Result {
	res := &Result{Kind: KindUnknown}

	entries, err := afero.ReadDir(a.fs, projectRoot)
	if err != nil || len(entries) == 0 {
		res.Warnings = append(res.Warnings, "project is empty or unreadable; analysis skipped")
		return res
	}

	dirs, files := splitEntries(entries)

	// Phase 1: architecture hypothesis
	scored := a.scoreHypotheses(dirs, files)
	best := scored[0]
	res.Kind = best.kind
	phase1Conf := best.confidence

	// Phase 2: independent per-module reasoning
	findings, phase2Conf := a.analyzeModules(ctx, projectRoot, dirs)

	// Phase 3: dependency graph and critical-path flags
	phase3Conf := markCoreModules(findings)
	res.Modules = findings

	res.Confidence = phase1Weight*phase1Conf + phase2Weight*phase2Conf + phase3Weight*phase3Conf

	// Phase 4: reflection. One backtrack maximum: retry with the
	// next-best hypothesis, keep whichever scores higher overall.
	if res.Confidence < reflectionThreshold && len(scored) > 1 {
		next := scored[1]
		alt := phase1Weight*next.confidence + phase2Weight*phase2Conf + phase3Weight*phase3Conf
		if alt > res.Confidence {
			a.log.Debug("reflection: switching hypothesis %s -> %s", best.kind, next.kind)
			res.Kind = next.kind
			res.Confidence = alt
		}
	}

	if !hasEntryPoint(files, findings) {
		res.Warnings = append(res.Warnings, "no entry point found")
	}

	return res
}

type scoredHypothesis struct {
	kind       ArchitectureKind
	confidence float64
}

// scoreHypotheses matches structural signals for each candidate kind and
// returns them ordered best first. Confidence is the normalized share of
// expected signals actually present.
func (a *Analyzer) scoreHypotheses(dirs []string, files []string) []scoredHypothesis {
	dirSet := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		dirSet[strings.ToLower(d)] = true
	}
	filesLower := make([]string, len(files))
	for i, f := range files {
		filesLower[i] = strings.ToLower(f)
	}

	scored := make([]scoredHypothesis, 0, len(hypotheses))
	for _, h := range hypotheses {
		matched := 0
		for _, sig := range h.dirSignals {
			if dirSet[sig] {
				matched++
			}
		}
		for _, sig := range h.fileSignals {
			for _, f := range filesLower {
				if strings.Contains(f, sig) {
					matched++
					break
				}
			}
		}
		total := len(h.dirSignals) + len(h.fileSignals)
		scored = append(scored, scoredHypothesis{
			kind:       h.kind,
			confidence: float64(matched) / float64(total),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].confidence > scored[j].confidence
	})
	return scored
}

// analyzeModules runs Phase 2: one independent scan per top-level source
// directory, up to maxModules, in parallel. No cross-module state.
func (a *Analyzer) analyzeModules(ctx context.Context, projectRoot string, dirs []string) ([]ModuleFinding, float64) {
	candidates := dirs
	if len(candidates) > maxModules {
		candidates = candidates[:maxModules]
	}

	findings := make([]ModuleFinding, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(phase2Parallelism)

	for i, dir := range candidates {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			findings[i] = a.analyzeModule(filepath.Join(projectRoot, dir), dir)
			return nil
		})
	}

	// A single bad module is downgraded to a warning inside its finding,
	// never an analysis failure; the only group error is cancellation.
	if err := g.Wait(); err != nil {
		a.log.Warn("module analysis interrupted: %v", err)
	}

	if len(findings) == 0 {
		return nil, 0
	}
	sum := 0.0
	for _, f := range findings {
		sum += f.Confidence
	}
	return findings, sum / float64(len(findings))
}

// purposeHints maps directory-name fragments to purpose hypotheses
var purposeHints = []struct {
	fragment string
	purpose  string
}{
	{"cmd", "entry points"},
	{"api", "external interface"},
	{"server", "external interface"},
	{"handler", "external interface"},
	{"model", "domain types"},
	{"domain", "domain types"},
	{"store", "persistence"},
	{"db", "persistence"},
	{"repo", "persistence"},
	{"config", "configuration"},
	{"test", "test support"},
	{"util", "shared helpers"},
	{"internal", "implementation detail"},
	{"doc", "documentation"},
}

var importLine = regexp.MustCompile(`^\s*(import\s|from\s+\S+\s+import|#include\s|require\s*\(|use\s+\S+;|"[\w./-]+"$)`)

// analyzeModule computes a local purpose hypothesis, a static dependency
// count, and a local confidence for one directory.
func (a *Analyzer) analyzeModule(path, name string) ModuleFinding {
	f := ModuleFinding{Name: name, Purpose: "unclassified", Confidence: 0.3, imports: map[string]bool{}}

	lower := strings.ToLower(name)
	for _, h := range purposeHints {
		if strings.Contains(lower, h.fragment) {
			f.Purpose = h.purpose
			f.Confidence = 0.7
			break
		}
	}

	entries, err := afero.ReadDir(a.fs, path)
	if err != nil {
		f.Confidence = 0
		return f
	}

	scanned := 0
	for _, e := range entries {
		if e.IsDir() || scanned >= maxFilesPerModule {
			continue
		}
		scanned++
		a.scanImports(filepath.Join(path, e.Name()), &f)
	}
	f.DependencyCount = len(f.imports)

	// Source files sharpen the hypothesis a little
	if scanned > 0 && f.Confidence < 0.9 {
		f.Confidence += 0.1
	}
	return f
}

// scanImports collects referenced module names from import-like lines
func (a *Analyzer) scanImports(path string, f *ModuleFinding) {
	file, err := a.fs.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lines := 0
	for scanner.Scan() && lines < 200 {
		lines++
		line := scanner.Text()
		if !importLine.MatchString(line) {
			continue
		}
		for _, tok := range strings.FieldsFunc(line, func(r rune) bool {
			return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '/' || r == '.')
		}) {
			tok = strings.Trim(tok, "./")
			if tok != "" && tok != "import" && tok != "from" && tok != "include" && tok != "require" && tok != "use" {
				f.imports[tok] = true
			}
		}
	}
}

// markCoreModules runs Phase 3: build the inter-module dependency graph
// from Phase 2 import sets and flag high in-degree modules as core.
// Returns a confidence proportional to how much of the graph resolved.
func markCoreModules(findings []ModuleFinding) float64 {
	if len(findings) == 0 {
		return 0
	}

	inDegree := make(map[string]int, len(findings))
	resolved := 0
	for _, from := range findings {
		for imp := range from.imports {
			for j := range findings {
				if findings[j].Name == from.Name {
					continue
				}
				if strings.Contains(imp, findings[j].Name) {
					inDegree[findings[j].Name]++
					resolved++
				}
			}
		}
	}

	for i := range findings {
		if inDegree[findings[i].Name] >= coreInDegree {
			findings[i].Core = true
		}
	}

	if resolved == 0 {
		return 0.3 // graph carried no signal either way
	}
	conf := 0.5 + float64(len(inDegree))/float64(2*len(findings))
	if conf > 1 {
		conf = 1
	}
	return conf
}

func splitEntries(entries []os.FileInfo) (dirs []string, files []string) {
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			dirs = append(dirs, name)
		} else {
			files = append(files, name)
		}
	}
	sort.Strings(dirs)
	return dirs, files
}

func hasEntryPoint(files []string, findings []ModuleFinding) bool {
	for _, f := range files {
		lower := strings.ToLower(f)
		if strings.HasPrefix(lower, "main.") || lower == "index.js" || lower == "app.py" {
			return true
		}
	}
	for _, m := range findings {
		if m.Purpose == "entry points" {
			return true
		}
	}
	return false
}

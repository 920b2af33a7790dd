package usecase

import (
	"sort"
	"strings"
	"unicode"

	"github.com/eliteGoblin/focusd/ficha/internal/domain"
)

// AppCandidate is a running process offered to the user as something to block.
type AppCandidate struct {
	Name        string
	ProcessName string
	ExePath     string
	Category    string
}

// RunningCandidates lists running processes deduplicated by name,
// without system processes, sorted by display name.
func RunningCandidates(pm domain.ProcessManager) ([]AppCandidate, error) {
	procs, err := pm.Snapshot()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	candidates := make([]AppCandidate, 0)
	for _, p := range procs {
		if p.Name == "" || IsSystemProcess(p.Name) {
			continue
		}
		if _, ok := seen[p.Name]; ok {
			continue
		}
		seen[p.Name] = struct{}{}
		candidates = append(candidates, AppCandidate{
			Name:        DisplayName(p.Name),
			ProcessName: p.Name,
			ExePath:     p.ExePath,
			Category:    "Running",
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Name < candidates[j].Name
	})
	return candidates, nil
}

// DisplayName title-cases a process name: "brave-browser" -> "Brave Browser".
func DisplayName(processName string) string {
	words := strings.Fields(strings.NewReplacer("-", " ", "_", " ").Replace(processName))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

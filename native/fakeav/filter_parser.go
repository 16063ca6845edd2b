package fakeav

import (
	"fmt"
	"regexp"
	"strings"
)

type parsedFilter struct {
	name      string
	args      string
	inLabels  []string
	outLabels []string
}

type parsedChain []*parsedFilter

var (
	filterSpecRegexp = regexp.MustCompile(`^((?:\s*\[[^\]]+\])*)\s*([A-Za-z0-9_]+)(?:=([^\[]*))?\s*((?:\[[^\]]+\]\s*)*)$`)
	labelRegexp      = regexp.MustCompile(`\[([^\]]+)\]`)
)

func parseLabels(s string) []string {
	var result []string
	for _, m := range labelRegexp.FindAllStringSubmatch(s, -1) {
		result = append(result, strings.TrimSpace(m[1]))
	}
	return result
}

func parseDescription(description string) ([]parsedChain, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, fmt.Errorf("empty filter graph description")
	}

	var chains []parsedChain
	for chainIdx, chainStr := range strings.Split(description, ";") {
		chainStr = strings.TrimSpace(chainStr)
		if chainStr == "" {
			return nil, fmt.Errorf("empty filter chain #%d", chainIdx)
		}
		var chain parsedChain
		for _, filterStr := range strings.Split(chainStr, ",") {
			m := filterSpecRegexp.FindStringSubmatch(strings.TrimSpace(filterStr))
			if m == nil {
				return nil, fmt.Errorf("unable to parse the filter specification '%s'", filterStr)
			}
			chain = append(chain, &parsedFilter{
				name:      m[2],
				args:      strings.TrimSpace(m[3]),
				inLabels:  parseLabels(m[1]),
				outLabels: parseLabels(m[4]),
			})
		}
		chains = append(chains, chain)
	}
	return chains, nil
}

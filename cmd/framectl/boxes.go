package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/framelab/actionframes/internal/domain/entity"
)

// parseBoxes reads "x,y,w,h;x,y,w,h". An empty string is an explicit empty
// annotation.
func parseBoxes(s string) ([]entity.Box, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []entity.Box{}, nil
	}

	var boxes []entity.Box
	for _, part := range strings.Split(s, ";") {
		fields := strings.Split(strings.TrimSpace(part), ",")
		if len(fields) != 4 {
			return nil, fmt.Errorf("box %q: want x,y,w,h", part)
		}
		var v [4]int
		for i, f := range fields {
			n, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil {
				return nil, fmt.Errorf("box %q: %w", part, err)
			}
			v[i] = n
		}
		if v[2] <= 0 || v[3] <= 0 {
			return nil, fmt.Errorf("box %q: width and height must be positive", part)
		}
		boxes = append(boxes, entity.Box{X: v[0], Y: v[1], W: v[2], H: v[3]})
	}
	return boxes, nil
}

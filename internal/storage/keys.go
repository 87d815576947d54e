package storage

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// KeyGenerator names uploaded objects as <prefix>/<owner>/<snowflake id>.<ext>.
type KeyGenerator struct {
	node *snowflake.Node
}

func NewKeyGenerator(nodeID int64) (*KeyGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("storage: snowflake node: %w", err)
	}
	return &KeyGenerator{node: node}, nil
}

func (g *KeyGenerator) Next(prefix, owner, ext string) string {
	return fmt.Sprintf("%s/%s/%d.%s", prefix, sanitizeSegment(owner), g.node.Generate().Int64(), ext)
}

// sanitizeSegment keeps client supplied identifiers from escaping their directory.
func sanitizeSegment(raw string) string {
	var builder strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('_')
		}
	}
	if builder.Len() == 0 {
		return "anonymous"
	}
	segment := builder.String()
	if len(segment) > 64 {
		segment = segment[:64]
	}
	return segment
}

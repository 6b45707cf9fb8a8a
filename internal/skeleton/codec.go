package skeleton

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedBlob is returned by Decode when the textual form doesn't
// parse as a well-formed skeleton list.
var ErrMalformedBlob = errors.New("skeleton: malformed blob")

// Encode produces the canonical UTF-8 textual serialisation of skels.
// The format replaces the unsafe eval-based original with a line-oriented
// grammar that is trivial to validate on the receiving side:
//
//	skeleton <id> <numKeypoints> <numBones>
//	keypoint <name> <x> <y> <z>
//	...
//	bone <from> <to>
//	...
//
// one skeleton block per skeleton, blocks separated by a blank line. The
// blob never contains the frame header or mask; those travel as separate
// messages.
func Encode(skels []Skeleton) string {
	var b strings.Builder
	for i, s := range skels {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "skeleton %d %d %d\n", s.ID, len(s.Keypoints), len(s.Bones))
		for _, kp := range s.Keypoints {
			fmt.Fprintf(&b, "keypoint %s %s %s %s\n",
				escapeToken(kp.Name), formatFloat(kp.X), formatFloat(kp.Y), formatFloat(kp.Z))
		}
		for _, bone := range s.Bones {
			fmt.Fprintf(&b, "bone %s %s\n", escapeToken(bone.From), escapeToken(bone.To))
		}
	}
	return b.String()
}

// Decode parses the canonical textual form produced by Encode, validating
// structure and field counts as it goes.
func Decode(data string) ([]Skeleton, error) {
	var skels []Skeleton
	var cur *Skeleton
	var wantKeypoints, wantBones int

	lines := strings.Split(data, "\n")
	for lineNo, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "skeleton":
			if cur != nil {
				if len(cur.Keypoints) != wantKeypoints || len(cur.Bones) != wantBones {
					return nil, fmt.Errorf("%w: skeleton %d field count mismatch", ErrMalformedBlob, cur.ID)
				}
				skels = append(skels, *cur)
			}
			if len(fields) != 4 {
				return nil, fmt.Errorf("%w: line %d: expected 'skeleton id nk nb'", ErrMalformedBlob, lineNo+1)
			}
			id, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: bad id: %v", ErrMalformedBlob, lineNo+1, err)
			}
			wantKeypoints, err = strconv.Atoi(fields[2])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: bad keypoint count: %v", ErrMalformedBlob, lineNo+1, err)
			}
			wantBones, err = strconv.Atoi(fields[3])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: bad bone count: %v", ErrMalformedBlob, lineNo+1, err)
			}
			cur = &Skeleton{ID: id}
		case "keypoint":
			if cur == nil || len(fields) != 5 {
				return nil, fmt.Errorf("%w: line %d: stray or malformed keypoint", ErrMalformedBlob, lineNo+1)
			}
			x, err1 := strconv.ParseFloat(fields[2], 32)
			y, err2 := strconv.ParseFloat(fields[3], 32)
			z, err3 := strconv.ParseFloat(fields[4], 32)
			if err1 != nil || err2 != nil || err3 != nil {
				return nil, fmt.Errorf("%w: line %d: bad keypoint coordinates", ErrMalformedBlob, lineNo+1)
			}
			cur.Keypoints = append(cur.Keypoints, Keypoint{
				Name: unescapeToken(fields[1]), X: float32(x), Y: float32(y), Z: float32(z),
			})
		case "bone":
			if cur == nil || len(fields) != 3 {
				return nil, fmt.Errorf("%w: line %d: stray or malformed bone", ErrMalformedBlob, lineNo+1)
			}
			cur.Bones = append(cur.Bones, Bone{From: unescapeToken(fields[1]), To: unescapeToken(fields[2])})
		default:
			return nil, fmt.Errorf("%w: line %d: unknown record %q", ErrMalformedBlob, lineNo+1, fields[0])
		}
	}
	if cur != nil {
		if len(cur.Keypoints) != wantKeypoints || len(cur.Bones) != wantBones {
			return nil, fmt.Errorf("%w: skeleton %d field count mismatch", ErrMalformedBlob, cur.ID)
		}
		skels = append(skels, *cur)
	}
	return skels, nil
}

// escapeToken/unescapeToken guard against spaces in joint names, which
// would otherwise break the whitespace-delimited grammar above. Other
// whitespace (tabs, newlines) is not escaped, so a name containing it does
// not round-trip. Only backslash and space are escaped, so a name that legitimately
// contains an underscore (e.g. "left_shoulder") round-trips unchanged.
func escapeToken(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case ' ':
			b.WriteString(`\s`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func unescapeToken(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '\\' && i+1 < len(runes) {
			switch runes[i+1] {
			case 's':
				b.WriteRune(' ')
				i++
				continue
			case '\\':
				b.WriteRune('\\')
				i++
				continue
			}
		}
		b.WriteRune(runes[i])
	}
	return b.String()
}

func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}

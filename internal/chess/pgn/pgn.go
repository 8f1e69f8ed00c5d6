// Package pgn streams chess games out of a PGN byte stream, producing
// per-game headers, move lists, and per-ply FEN snapshots. It is
// tolerant of multiple concatenated games and skips unparseable games
// individually rather than aborting the whole stream.
package pgn

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/smilemakc/chessmate/internal/chess"
	"github.com/smilemakc/chessmate/internal/chesserr"
)

// Ply is one half-move: its SAN text, the FEN snapshot after it was
// applied, the side that moved, and its 1-based ply index within the game.
type Ply struct {
	Index      int
	MoveNumber int
	Side       chess.Color
	SAN        string
	FEN        string
}

// Game is one parsed PGN game: its tag headers, its ply list, and its
// Result tag value.
type Game struct {
	Tags   map[string]string
	Plies  []Ply
	Result string
}

var tagLineRE = regexp.MustCompile(`^\[(\w+)\s+"(.*)"\]\s*$`)

// moveTokenRE strips move numbers ("12.", "12...") from the movetext.
var moveTokenRE = regexp.MustCompile(`^\d+\.+$`)

// ParseAll streams every game out of r, invoking onGame for each one it
// manages to parse (successfully or not). A game that fails with NoMoves
// or IllegalMove is reported via onGame with a non-nil error but does not
// stop the stream; a BadEncoding error on the raw input does stop the
// stream immediately since no further games can be trusted to decode.
func ParseAll(r io.Reader, onGame func(*Game, error)) error {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return fmt.Errorf("pgn: read input: %w", err)
	}
	raw := buf.Bytes()
	if !utf8.Valid(raw) {
		return chesserr.New(chesserr.BadEncoding, "input is not valid UTF-8")
	}

	for _, block := range splitGames(string(raw)) {
		if strings.TrimSpace(block) == "" {
			continue
		}
		game, err := parseGame(block)
		onGame(game, err)
	}
	return nil
}

// splitGames breaks a multi-game PGN stream into per-game blocks. A new
// game starts at a tag-pair line that follows a blank line once movetext
// has begun, so consecutive tag blocks (no movetext yet) stay together.
func splitGames(raw string) []string {
	lines := strings.Split(raw, "\n")
	var blocks []string
	var current []string
	sawMovetext := false

	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, strings.Join(current, "\n"))
			current = nil
			sawMovetext = false
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		isTag := tagLineRE.MatchString(trimmed)
		if isTag && sawMovetext {
			flush()
		}
		if trimmed != "" {
			current = append(current, line)
			if !isTag {
				sawMovetext = true
			}
		}
	}
	flush()
	return blocks
}

func parseGame(block string) (*Game, error) {
	tags := map[string]string{}
	var movetextLines []string

	for _, line := range strings.Split(block, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if m := tagLineRE.FindStringSubmatch(trimmed); m != nil {
			tags[m[1]] = m[2]
			continue
		}
		movetextLines = append(movetextLines, trimmed)
	}

	movetext := stripCommentsAndVariations(strings.Join(movetextLines, " "))
	sans, result := tokenizeMovetext(movetext)

	resultTag := normalizeResult(tags["Result"])
	if resultTag == "" {
		resultTag = result
	}

	startFEN := chess.InitialFEN
	if fen, ok := tags["FEN"]; ok && fen != "" {
		startFEN = fen
	}
	pos, err := chess.ParseFEN(startFEN)
	if err != nil {
		return &Game{Tags: tags, Result: resultTag}, chesserr.Wrap(chesserr.BadInput, "invalid FEN header", err)
	}

	if len(sans) == 0 {
		return &Game{Tags: tags, Result: resultTag}, chesserr.New(chesserr.NoMoves, "game has zero moves")
	}

	plies := make([]Ply, 0, len(sans))
	for i, san := range sans {
		side := pos.SideToMove
		moveNo := pos.FullmoveNo
		if err := pos.ApplySAN(san); err != nil {
			return &Game{Tags: tags, Plies: plies, Result: resultTag},
				chesserr.WithPly(chesserr.IllegalMove, fmt.Sprintf("illegal move %q", san), i+1)
		}
		plies = append(plies, Ply{
			Index:      i + 1,
			MoveNumber: moveNo,
			Side:       side,
			SAN:        san,
			FEN:        pos.FEN(),
		})
	}

	return &Game{Tags: tags, Plies: plies, Result: resultTag}, nil
}

// stripCommentsAndVariations removes brace comments and parenthesized
// variations, which may nest one level deep in practice.
func stripCommentsAndVariations(s string) string {
	var out strings.Builder
	depthParen := 0
	inComment := false
	for _, r := range s {
		switch {
		case inComment:
			if r == '}' {
				inComment = false
			}
		case r == '{':
			inComment = true
		case r == '(':
			depthParen++
		case r == ')':
			if depthParen > 0 {
				depthParen--
			}
		case depthParen > 0:
			// inside a variation, skip
		default:
			out.WriteRune(r)
		}
	}
	return out.String()
}

var resultTokens = map[string]bool{"1-0": true, "0-1": true, "1/2-1/2": true, "*": true}

// tokenizeMovetext splits movetext into SAN tokens, discarding move
// numbers and NAG annotations ($n), and reports the trailing result token
// if one was present.
func tokenizeMovetext(movetext string) ([]string, string) {
	fields := strings.Fields(movetext)
	var sans []string
	result := ""

	for _, tok := range fields {
		if resultTokens[tok] {
			result = normalizeResult(tok)
			continue
		}
		if moveTokenRE.MatchString(tok) {
			continue
		}
		if strings.HasPrefix(tok, "$") {
			continue
		}
		sans = append(sans, tok)
	}
	return sans, result
}

func normalizeResult(tok string) string {
	if tok == "1/2-1/2" {
		return "½-½"
	}
	return tok
}

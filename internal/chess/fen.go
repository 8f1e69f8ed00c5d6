package chess

import (
	"fmt"
	"strconv"
	"strings"
)

// Castling tracks the four castling rights.
type Castling struct {
	WhiteKing, WhiteQueen, BlackKing, BlackQueen bool
}

// Position is a full FEN-equivalent board snapshot.
type Position struct {
	Board        Board
	SideToMove   Color
	Castle       Castling
	EnPassant    Square // noSquare if unavailable
	HalfmoveClk  int
	FullmoveNo   int
}

// InitialFEN is the standard chess starting position.
const InitialFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// InitialPosition returns the standard starting position.
func InitialPosition() *Position {
	pos, err := ParseFEN(InitialFEN)
	if err != nil {
		panic("chess: invalid built-in initial FEN: " + err.Error())
	}
	return pos
}

var pieceRunes = map[rune]PieceType{
	'p': Pawn, 'n': Knight, 'b': Bishop, 'r': Rook, 'q': Queen, 'k': King,
}

// ParseFEN parses the standard 6-field FEN string.
func ParseFEN(fen string) (*Position, error) {
	fields := strings.Fields(strings.TrimSpace(fen))
	if len(fields) != 6 {
		return nil, fmt.Errorf("fen: expected 6 fields, got %d", len(fields))
	}

	var board Board
	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return nil, fmt.Errorf("fen: expected 8 ranks, got %d", len(ranks))
	}
	for i, rankStr := range ranks {
		rank := 7 - i
		file := 0
		for _, ch := range rankStr {
			switch {
			case ch >= '1' && ch <= '8':
				file += int(ch - '0')
			default:
				pt, ok := pieceRunes[toLowerRune(ch)]
				if !ok {
					return nil, fmt.Errorf("fen: invalid piece char %q", ch)
				}
				if file > 7 {
					return nil, fmt.Errorf("fen: rank %d overflows files", i)
				}
				color := White
				if ch >= 'a' && ch <= 'z' {
					color = Black
				}
				board.Set(NewSquare(file, rank), Piece{pt, color})
				file++
			}
		}
		if file != 8 {
			return nil, fmt.Errorf("fen: rank %d has %d files, want 8", i, file)
		}
	}

	var side Color
	switch fields[1] {
	case "w":
		side = White
	case "b":
		side = Black
	default:
		return nil, fmt.Errorf("fen: invalid side to move %q", fields[1])
	}

	var castle Castling
	if fields[2] != "-" {
		for _, ch := range fields[2] {
			switch ch {
			case 'K':
				castle.WhiteKing = true
			case 'Q':
				castle.WhiteQueen = true
			case 'k':
				castle.BlackKing = true
			case 'q':
				castle.BlackQueen = true
			default:
				return nil, fmt.Errorf("fen: invalid castling char %q", ch)
			}
		}
	}

	ep := noSquare
	if fields[3] != "-" {
		sq, err := ParseSquare(fields[3])
		if err != nil {
			return nil, fmt.Errorf("fen: invalid en passant square: %w", err)
		}
		ep = sq
	}

	half, err := strconv.Atoi(fields[4])
	if err != nil {
		return nil, fmt.Errorf("fen: invalid halfmove clock %q", fields[4])
	}
	full, err := strconv.Atoi(fields[5])
	if err != nil {
		return nil, fmt.Errorf("fen: invalid fullmove number %q", fields[5])
	}

	return &Position{
		Board:       board,
		SideToMove:  side,
		Castle:      castle,
		EnPassant:   ep,
		HalfmoveClk: half,
		FullmoveNo:  full,
	}, nil
}

// FEN renders the position as a 6-field FEN string.
func (p *Position) FEN() string {
	var sb strings.Builder
	for r := 7; r >= 0; r-- {
		empty := 0
		for f := 0; f < 8; f++ {
			piece := p.Board.PieceAt(NewSquare(f, r))
			if piece.Empty() {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			sb.WriteRune(pieceChar(piece))
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if r > 0 {
			sb.WriteByte('/')
		}
	}

	sb.WriteByte(' ')
	if p.SideToMove == White {
		sb.WriteByte('w')
	} else {
		sb.WriteByte('b')
	}

	sb.WriteByte(' ')
	castle := ""
	if p.Castle.WhiteKing {
		castle += "K"
	}
	if p.Castle.WhiteQueen {
		castle += "Q"
	}
	if p.Castle.BlackKing {
		castle += "k"
	}
	if p.Castle.BlackQueen {
		castle += "q"
	}
	if castle == "" {
		castle = "-"
	}
	sb.WriteString(castle)

	sb.WriteByte(' ')
	if p.EnPassant == noSquare {
		sb.WriteByte('-')
	} else {
		sb.WriteString(p.EnPassant.String())
	}

	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(p.HalfmoveClk))
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(p.FullmoveNo))

	return sb.String()
}

func pieceChar(p Piece) rune {
	var r rune
	switch p.Type {
	case Pawn:
		r = 'p'
	case Knight:
		r = 'n'
	case Bishop:
		r = 'b'
	case Rook:
		r = 'r'
	case Queen:
		r = 'q'
	case King:
		r = 'k'
	}
	if p.Color == White {
		r = toUpperRune(r)
	}
	return r
}

func toLowerRune(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

func toUpperRune(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}
	return r
}

// Clone returns a deep copy (the Board array is a value type, so this is a
// plain struct copy).
func (p *Position) Clone() *Position {
	cp := *p
	return &cp
}

package chess

import (
	"fmt"
	"strings"
)

// ApplySAN mutates the position by applying a single SAN move for the side
// to move. It returns an error if the move text cannot be resolved to
// exactly one legal-looking origin square; it does not verify that the
// resulting position leaves the mover's own king safe, since that level of
// legality checking is outside what PGN ingestion requires.
func (p *Position) ApplySAN(san string) error {
	move := strings.TrimRight(san, "+#!?")
	move = strings.TrimSpace(move)
	if move == "" {
		return fmt.Errorf("empty move text")
	}

	if move == "O-O" || move == "0-0" {
		return p.applyCastle(true)
	}
	if move == "O-O-O" || move == "0-0-0" {
		return p.applyCastle(false)
	}

	promotion := None
	if idx := strings.IndexByte(move, '='); idx >= 0 {
		promoChar := move[idx+1]
		pt, ok := pieceRunes[toLowerRune(rune(promoChar))]
		if !ok || pt == Pawn || pt == King {
			return fmt.Errorf("invalid promotion piece in %q", san)
		}
		promotion = pt
		move = move[:idx]
	}

	if len(move) < 2 {
		return fmt.Errorf("move text too short: %q", san)
	}

	pieceType := Pawn
	rest := move
	if c := move[0]; c >= 'A' && c <= 'Z' {
		pt, ok := pieceRunes[toLowerRune(rune(c))]
		if !ok {
			return fmt.Errorf("unknown piece letter %q in %q", string(c), san)
		}
		pieceType = pt
		rest = move[1:]
	}

	capture := strings.Contains(rest, "x")
	rest = strings.Replace(rest, "x", "", 1)

	if len(rest) < 2 {
		return fmt.Errorf("missing destination square in %q", san)
	}
	destStr := rest[len(rest)-2:]
	disambig := rest[:len(rest)-2]

	dest, err := ParseSquare(destStr)
	if err != nil {
		return fmt.Errorf("bad destination in %q: %w", san, err)
	}

	var disFile, disRank = -1, -1
	for _, ch := range disambig {
		switch {
		case ch >= 'a' && ch <= 'h':
			disFile = int(ch - 'a')
		case ch >= '1' && ch <= '8':
			disRank = int(ch - '1')
		default:
			return fmt.Errorf("bad disambiguation char %q in %q", string(ch), san)
		}
	}

	origin, err := p.findOrigin(pieceType, dest, disFile, disRank, capture)
	if err != nil {
		return err
	}

	p.applyMove(origin, dest, pieceType, promotion, capture)
	return nil
}

func (p *Position) findOrigin(pt PieceType, dest Square, disFile, disRank int, capture bool) (Square, error) {
	var candidates []Square
	for sq := Square(0); sq < 64; sq++ {
		piece := p.Board.PieceAt(sq)
		if piece.Empty() || piece.Type != pt || piece.Color != p.SideToMove {
			continue
		}
		if disFile >= 0 && sq.File() != disFile {
			continue
		}
		if disRank >= 0 && sq.Rank() != disRank {
			continue
		}
		if p.canReach(piece, sq, dest, capture) {
			candidates = append(candidates, sq)
		}
	}
	if len(candidates) != 1 {
		return noSquare, fmt.Errorf("ambiguous or illegal move to %s (%d candidates)", dest, len(candidates))
	}
	return candidates[0], nil
}

func (p *Position) canReach(piece Piece, from, to Square, capture bool) bool {
	if from == to {
		return false
	}
	df := to.File() - from.File()
	dr := to.Rank() - from.Rank()
	absDF, absDR := abs(df), abs(dr)

	switch piece.Type {
	case Pawn:
		return p.pawnCanReach(piece.Color, from, to, capture)
	case Knight:
		return (absDF == 1 && absDR == 2) || (absDF == 2 && absDR == 1)
	case Bishop:
		return absDF == absDR && absDF > 0 && p.clearPath(from, to)
	case Rook:
		return (df == 0 || dr == 0) && p.clearPath(from, to)
	case Queen:
		return ((absDF == absDR && absDF > 0) || df == 0 || dr == 0) && p.clearPath(from, to)
	case King:
		return absDF <= 1 && absDR <= 1
	}
	return false
}

func (p *Position) pawnCanReach(color Color, from, to Square, capture bool) bool {
	dir := 1
	startRank := 1
	if color == Black {
		dir = -1
		startRank = 6
	}
	df := to.File() - from.File()
	dr := to.Rank() - from.Rank()

	if capture {
		if abs(df) != 1 || dr != dir {
			return false
		}
		target := p.Board.PieceAt(to)
		if !target.Empty() && target.Color != color {
			return true
		}
		return to == p.EnPassant
	}

	if df != 0 {
		return false
	}
	if dr == dir {
		return p.Board.PieceAt(to).Empty()
	}
	if dr == 2*dir && from.Rank() == startRank {
		mid := NewSquare(from.File(), from.Rank()+dir)
		return p.Board.PieceAt(mid).Empty() && p.Board.PieceAt(to).Empty()
	}
	return false
}

func (p *Position) clearPath(from, to Square) bool {
	df := sign(to.File() - from.File())
	dr := sign(to.Rank() - from.Rank())
	f, r := from.File()+df, from.Rank()+dr
	for NewSquare(f, r) != to {
		if !p.Board.PieceAt(NewSquare(f, r)).Empty() {
			return false
		}
		f += df
		r += dr
	}
	return true
}

func (p *Position) applyMove(from, to Square, pieceType, promotion PieceType, capture bool) {
	mover := p.Board.PieceAt(from)

	enPassantCapture := pieceType == Pawn && capture && p.Board.PieceAt(to).Empty()
	if enPassantCapture {
		captureSq := NewSquare(to.File(), from.Rank())
		p.Board.Clear(captureSq)
	}

	p.Board.Clear(from)
	final := mover
	if promotion != None {
		final = Piece{promotion, mover.Color}
	}
	p.Board.Set(to, final)

	p.updateCastlingRights(from, to, pieceType)

	if pieceType == Pawn && abs(to.Rank()-from.Rank()) == 2 {
		p.EnPassant = NewSquare(from.File(), (from.Rank()+to.Rank())/2)
	} else {
		p.EnPassant = noSquare
	}

	if pieceType == Pawn || capture {
		p.HalfmoveClk = 0
	} else {
		p.HalfmoveClk++
	}

	if p.SideToMove == Black {
		p.FullmoveNo++
	}
	p.SideToMove = p.SideToMove.Opponent()
}

func (p *Position) applyCastle(kingside bool) error {
	color := p.SideToMove
	rank := 0
	if color == Black {
		rank = 7
	}
	kingFrom := NewSquare(4, rank)
	var kingTo, rookFrom, rookTo Square
	if kingside {
		kingTo = NewSquare(6, rank)
		rookFrom = NewSquare(7, rank)
		rookTo = NewSquare(5, rank)
	} else {
		kingTo = NewSquare(2, rank)
		rookFrom = NewSquare(0, rank)
		rookTo = NewSquare(3, rank)
	}

	king := p.Board.PieceAt(kingFrom)
	rook := p.Board.PieceAt(rookFrom)
	if king.Type != King || king.Color != color || rook.Type != Rook || rook.Color != color {
		return fmt.Errorf("castling rights unavailable for %s", color)
	}

	p.Board.Clear(kingFrom)
	p.Board.Clear(rookFrom)
	p.Board.Set(kingTo, king)
	p.Board.Set(rookTo, rook)

	p.updateCastlingRights(kingFrom, kingTo, King)
	p.EnPassant = noSquare
	p.HalfmoveClk++
	if p.SideToMove == Black {
		p.FullmoveNo++
	}
	p.SideToMove = p.SideToMove.Opponent()
	return nil
}

func (p *Position) updateCastlingRights(from, to Square, pieceType PieceType) {
	switch {
	case pieceType == King && from.Rank() == 0:
		p.Castle.WhiteKing, p.Castle.WhiteQueen = false, false
	case pieceType == King && from.Rank() == 7:
		p.Castle.BlackKing, p.Castle.BlackQueen = false, false
	}
	clearRookRight := func(sq Square) {
		switch sq {
		case NewSquare(0, 0):
			p.Castle.WhiteQueen = false
		case NewSquare(7, 0):
			p.Castle.WhiteKing = false
		case NewSquare(0, 7):
			p.Castle.BlackQueen = false
		case NewSquare(7, 7):
			p.Castle.BlackKing = false
		}
	}
	clearRookRight(from)
	clearRookRight(to)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func sign(x int) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

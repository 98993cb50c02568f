package outcome

import (
	"fmt"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/Cheese-PvP-server/internal/protocol"
)

// Notations replays history from the initial position. Moves the rules engine
// accepts (UCI or SAN) come back as SAN and UCI; from the first unreadable
// entry on, the raw strings are kept as-is and ok is false.
func Notations(history []protocol.MoveRecord) (san, uci []string, ok bool) {
	game := nchess.NewGame()
	ok = true
	for _, rec := range history {
		raw := strings.TrimSpace(rec.Move)
		if !ok || raw == "" {
			ok = false
			san = append(san, raw)
			continue
		}
		pos := game.Position()
		if err := game.PushNotationMove(strings.ToLower(raw), nchess.UCINotation{}, nil); err != nil {
			if err := game.PushNotationMove(raw, nchess.AlgebraicNotation{}, nil); err != nil {
				ok = false
				san = append(san, raw)
				continue
			}
		}
		moves := game.Moves()
		last := moves[len(moves)-1]
		san = append(san, nchess.AlgebraicNotation{}.Encode(pos, last))
		uci = append(uci, last.String())
	}
	return san, uci, ok
}

// PGN renders o with the standard seven tag roster plus TimeControl,
// Termination and, when the history did not replay, the final FEN.
func PGN(o Outcome) string {
	san, _, replayed := Notations(o.MoveHistory)

	date := o.PlayedAt
	if date.IsZero() {
		date = time.Now()
	}
	result := strings.TrimSpace(o.Result)
	switch result {
	case WhiteWins, BlackWins, Draw:
	default:
		result = "*"
	}

	var b strings.Builder
	b.WriteString("[Event \"PvP\"]\n")
	fmt.Fprintf(&b, "[Site \"%s\"]\n", sanitizePGN(o.RoomID))
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitizePGN(nameOr(o.WhiteName, o.WhiteID)))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitizePGN(nameOr(o.BlackName, o.BlackID)))
	if strings.TrimSpace(o.TimeControl) != "" {
		fmt.Fprintf(&b, "[TimeControl \"%s\"]\n", sanitizePGN(o.TimeControl))
	}
	if o.Method != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(string(o.Method)))
	}
	if !replayed && strings.TrimSpace(o.FinalFEN) != "" {
		fmt.Fprintf(&b, "[FinalFEN \"%s\"]\n", sanitizePGN(o.FinalFEN))
	}
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", result)

	for i := 0; i < len(san); i += 2 {
		fmt.Fprintf(&b, "%d. %s", i/2+1, san[i])
		if i+1 < len(san) {
			b.WriteString(" ")
			b.WriteString(san[i+1])
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func nameOr(name, id string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return id
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}

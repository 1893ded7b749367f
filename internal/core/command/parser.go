// Package command parses the short textual command language spoken by the
// bot: bare keywords (help, inventory, join, ...), keyword-plus-payload
// commands (add, sell, remove, broadcast, kick) and bulk initialization in
// the form "item=qty, item2=qty2".
package command

import (
	"strconv"
	"strings"
)

type Kind int

const (
	Unknown Kind = iota
	Help
	ShowInventory
	Add
	Sell
	Initialize
	Join
	Leave
	History
	Reset
	Remove
	Broadcast
	Kick
	Invalid
)

// Pair is one item=quantity token within a command payload.
type Pair struct {
	Item     string
	Quantity int
}

// Command is one parsed user instruction. Pairs is set for Add, Sell and
// Initialize; Arg carries the payload of Remove, Broadcast and Kick; Usage
// carries the hint echoed back for Invalid.
type Command struct {
	Kind  Kind
	Pairs []Pair
	Arg   string
	Usage string
}

// Parse converts one raw message into a Command. Matching is
// case-insensitive except for the broadcast payload, which keeps the
// sender's original casing.
func Parse(text string) Command {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	switch lower {
	case "help", "/help", "?":
		return Command{Kind: Help}
	case "inventory", "show", "status":
		return Command{Kind: ShowInventory}
	case "join":
		return Command{Kind: Join}
	case "leave":
		return Command{Kind: Leave}
	case "history":
		return Command{Kind: History}
	case "reset":
		return Command{Kind: Reset}
	}

	keyword, payload, found := strings.Cut(trimmed, " ")
	keyword = strings.ToLower(keyword)
	payload = strings.TrimSpace(payload)

	// Keyword commands are matched before the generic "=" rule so that
	// "add apple=3" is never misread as an initialize command.
	if found && payload != "" {
		switch keyword {
		case "add":
			return pairCommand(Add, payload, "add item=quantity")
		case "sell":
			return pairCommand(Sell, payload, "sell item=quantity")
		}
	}
	switch keyword {
	case "remove":
		if payload == "" {
			return Command{Kind: Invalid, Usage: "remove item"}
		}
		return Command{Kind: Remove, Arg: strings.ToLower(payload)}
	case "broadcast":
		if payload == "" {
			return Command{Kind: Invalid, Usage: "broadcast message"}
		}
		return Command{Kind: Broadcast, Arg: payload}
	case "kick":
		if payload == "" {
			return Command{Kind: Invalid, Usage: "kick phone-id"}
		}
		return Command{Kind: Kick, Arg: payload}
	}

	if strings.Contains(lower, "=") {
		return pairCommand(Initialize, lower, "item=quantity, item2=quantity2")
	}

	return Command{Kind: Unknown}
}

func pairCommand(kind Kind, payload, usage string) Command {
	pairs := ParsePairs(payload)
	if len(pairs) == 0 {
		return Command{Kind: Invalid, Usage: usage}
	}
	return Command{Kind: kind, Pairs: pairs}
}

// ParsePairs extracts item=quantity pairs from a comma-separated payload.
// Malformed segments are skipped rather than fatal: a missing "=", an empty
// item name or a quantity that is not a non-negative base-10 integer all
// drop the segment silently. A duplicated item keeps its last quantity.
func ParsePairs(text string) []Pair {
	var pairs []Pair
	seen := make(map[string]int)

	for _, segment := range strings.Split(text, ",") {
		item, qtyText, found := strings.Cut(segment, "=")
		if !found {
			continue
		}
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		qty, err := strconv.Atoi(strings.TrimSpace(qtyText))
		if err != nil || qty < 0 {
			continue
		}
		if i, ok := seen[item]; ok {
			pairs[i].Quantity = qty
			continue
		}
		seen[item] = len(pairs)
		pairs = append(pairs, Pair{Item: item, Quantity: qty})
	}

	return pairs
}

package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"mjscore/internal/domain"
)

var errUsage = errors.New("wrong number of arguments")

// parsePlayer accepts a player id or a case-insensitive name.
func parsePlayer(s domain.State, arg string) (int, error) {
	if id, err := strconv.Atoi(arg); err == nil {
		if !s.HasPlayer(id) {
			return 0, fmt.Errorf("%w: %d", domain.ErrUnknownPlayer, id)
		}
		return id, nil
	}
	for _, p := range s.Players {
		if strings.EqualFold(p.Name, arg) {
			return p.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", domain.ErrUnknownPlayer, arg)
}

func parseInt(what, arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not a number", what, arg)
	}
	return n, nil
}

// parsePair splits "player<sep>number".
func parsePair(s domain.State, arg, sep string) (int, string, error) {
	who, val, ok := strings.Cut(arg, sep)
	if !ok {
		return 0, "", fmt.Errorf("expected player%svalue, got %q", sep, arg)
	}
	id, err := parsePlayer(s, who)
	if err != nil {
		return 0, "", err
	}
	return id, val, nil
}

// parseEvent turns an event command and its arguments into a domain event.
//
//	zimo <winner> <fan>
//	win <winner> <loser> <fan>
//	multi <loser> <winner>:<fan> <winner>:<fan> [<winner>:<fan>]
//	collect <player> <amount>
//	pay <player> <amount>
//	zhahu <player> <opponent>=<amount>...
//	forfeit <loser>
func parseEvent(s domain.State, cmd string, args []string) (domain.Event, error) {
	switch cmd {
	case "zimo":
		if len(args) != 2 {
			return nil, errUsage
		}
		winner, err := parsePlayer(s, args[0])
		if err != nil {
			return nil, err
		}
		fan, err := parseInt("fan", args[1])
		if err != nil {
			return nil, err
		}
		return domain.SelfDraw{WinnerID: winner, Fan: fan}, nil

	case "win":
		if len(args) != 3 {
			return nil, errUsage
		}
		winner, err := parsePlayer(s, args[0])
		if err != nil {
			return nil, err
		}
		loser, err := parsePlayer(s, args[1])
		if err != nil {
			return nil, err
		}
		fan, err := parseInt("fan", args[2])
		if err != nil {
			return nil, err
		}
		return domain.DirectWin{WinnerID: winner, LoserID: loser, Fan: fan}, nil

	case "multi":
		if len(args) < 2 {
			return nil, errUsage
		}
		loser, err := parsePlayer(s, args[0])
		if err != nil {
			return nil, err
		}
		ev := domain.MultiHit{LoserID: loser}
		for _, arg := range args[1:] {
			id, val, err := parsePair(s, arg, ":")
			if err != nil {
				return nil, err
			}
			fan, err := parseInt("fan", val)
			if err != nil {
				return nil, err
			}
			ev.Winners = append(ev.Winners, domain.WinnerFan{WinnerID: id, Fan: fan})
		}
		return ev, nil

	case "collect", "pay":
		if len(args) != 2 {
			return nil, errUsage
		}
		actor, err := parsePlayer(s, args[0])
		if err != nil {
			return nil, err
		}
		amount, err := parseInt("amount", args[1])
		if err != nil {
			return nil, err
		}
		action := domain.ActionCollect
		if cmd == "pay" {
			action = domain.ActionPay
		}
		return domain.Special{ActorID: actor, Action: action, Amount: amount}, nil

	case "zhahu":
		if len(args) < 2 {
			return nil, errUsage
		}
		actor, err := parsePlayer(s, args[0])
		if err != nil {
			return nil, err
		}
		payouts := make(map[int]int, len(args)-1)
		for _, arg := range args[1:] {
			id, val, err := parsePair(s, arg, "=")
			if err != nil {
				return nil, err
			}
			amount, err := parseInt("amount", val)
			if err != nil {
				return nil, err
			}
			payouts[id] = amount
		}
		return domain.CustomPayout{ActorID: actor, Payouts: payouts}, nil

	case "forfeit":
		if len(args) != 1 {
			return nil, errUsage
		}
		loser, err := parsePlayer(s, args[0])
		if err != nil {
			return nil, err
		}
		return domain.Forfeit{LoserID: loser}, nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownEvent, cmd)
}

// parseAdjustments reads "<player>=<signed amount>" pairs for payout.
func parseAdjustments(s domain.State, args []string) (map[int]float64, error) {
	adj := make(map[int]float64, len(args))
	for _, arg := range args {
		id, val, err := parsePair(s, arg, "=")
		if err != nil {
			return nil, err
		}
		f, err := parseFloat(val)
		if err != nil {
			return nil, err
		}
		adj[id] += f
	}
	return adj, nil
}

func parseToggle(arg string) (bool, error) {
	switch strings.ToLower(arg) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", arg)
}

func parseFloat(arg string) (float64, error) {
	f, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", arg)
	}
	return f, nil
}

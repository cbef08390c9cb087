package consts

import "strings"

// BotType tags a trading agent and the portfolio it owns.
type BotType string

const (
	// 规则型算法机器人
	BotAlgo BotType = "ALGO"
	// 低成本 LLM 机器人
	BotCheap BotType = "CHEAP"
	// 高端推理模型机器人
	BotPremium BotType = "PREMIUM"
)

// BotTypes lists the agents in settlement order.
var BotTypes = []BotType{BotAlgo, BotCheap, BotPremium}

func (b BotType) Valid() bool {
	switch b {
	case BotAlgo, BotCheap, BotPremium:
		return true
	}
	return false
}

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// ParseAction normalizes an action string; ok is false for anything unknown.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionBuy:
		return ActionBuy, true
	case ActionSell:
		return ActionSell, true
	case ActionHold:
		return ActionHold, true
	}
	return ActionHold, false
}

package balloon

import (
	"fmt"

	"github.com/signalnine/bart/internal/gateway"
)

const responseInstruction = "Respond ONLY with 'Pump' or 'Cash Out'."

// SystemPrompt states the rules of the game. The burst point is described
// as hidden and never disclosed.
func SystemPrompt(rewardPerPump float64) string {
	return fmt.Sprintf(
		"You are playing a balloon game.\n"+
			"- Each pump earns you $%.2f.\n"+
			"- The balloon has a hidden burst point. You do not know where it is.\n"+
			"- If the balloon bursts, you lose everything earned on that balloon.\n"+
			"- You can 'Pump' again or 'Cash Out' at any time. Cashing out keeps your earnings and ends the balloon.\n"+
			"%s", rewardPerPump, responseInstruction)
}

// IntroPrompt opens a balloon.
func IntroPrompt(balloon, numBalloons int) string {
	return fmt.Sprintf(
		"Balloon %d of %d.\nYou have a fresh balloon. Current earnings: $%.2f\n%s",
		balloon, numBalloons, 0.0, responseInstruction)
}

// UpdatePrompt follows a pump that did not burst the balloon.
func UpdatePrompt(pumps int, earnings float64) string {
	return fmt.Sprintf(
		"The balloon did NOT burst. Pumps so far: %d. Current earnings: $%.2f.\n"+
			"Do you choose to 'Pump' again or 'Cash Out'?\n%s",
		pumps, earnings, responseInstruction)
}

// NewConversation returns the opening messages of one balloon.
func NewConversation(rewardPerPump float64, balloon, numBalloons int) []gateway.Message {
	return []gateway.Message{
		{Role: gateway.RoleSystem, Content: SystemPrompt(rewardPerPump)},
		{Role: gateway.RoleUser, Content: IntroPrompt(balloon, numBalloons)},
	}
}

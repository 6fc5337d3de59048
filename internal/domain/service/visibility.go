package service

import "github.com/botforge/botforge/internal/domain/entity"

// VisibleCommands applies the visibility rules for one chat. With no
// active multi-command every active command of the bot is reachable,
// multi-commands included. Inside multi-command M only M's nested
// commands are reachable, plus top-level ones when M allows external
// commands.
func VisibleCommands(all []*entity.Command, activeMulti *entity.Command) []*entity.Command {
	visible := make([]*entity.Command, 0, len(all))
	for _, c := range all {
		if !c.IsActive {
			continue
		}
		if activeMulti == nil {
			visible = append(visible, c)
			continue
		}
		if c.ParentMultiCommandID == activeMulti.ID {
			visible = append(visible, c)
			continue
		}
		if activeMulti.AllowExternalCommands && !c.IsNested() {
			visible = append(visible, c)
		}
	}
	return visible
}

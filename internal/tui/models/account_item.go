package models

import (
	"fmt"

	"github.com/adsightlabs/adconnect/internal/accounts"
)

// AccountItem wraps a normalized account for display in the picker list.
// Implements list.Item
type AccountItem struct {
	Account  accounts.Account
	Selected bool
}

func (i AccountItem) Title() string {
	marker := "[ ]"
	if i.Selected {
		marker = "[x]"
	}
	return fmt.Sprintf("%s %s", marker, i.Account.Name)
}

func (i AccountItem) Description() string {
	desc := fmt.Sprintf("%s · %s", i.Account.ID, i.Account.Status)
	if i.Account.CustomerID != "" && i.Account.CustomerID != i.Account.ID {
		desc = fmt.Sprintf("%s · customer %s", desc, i.Account.CustomerID)
	}
	if len(i.Account.Children) > 0 {
		desc = fmt.Sprintf("%s · %d sub-accounts", desc, len(i.Account.Children))
	}
	return desc
}

func (i AccountItem) ToggleSelected() AccountItem {
	i.Selected = !i.Selected
	return i
}

func (i AccountItem) FilterValue() string {
	return i.Account.Name + " " + i.Account.ID + " " + i.Account.CustomerID
}

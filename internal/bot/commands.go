package bot

// Bot commands.
const (
	CommandStart     = "/start"
	CommandHelp      = "/help"
	CommandRegister  = "/register"
	CommandLang      = "/lang"
	CommandPing      = "/ping"
	CommandExpense   = "/expense"
	CommandDebts     = "/debts"
	CommandDebtsToMe = "/debts_to_me"
	CommandMyDebts   = "/my_debts"
	CommandPayDebt   = "/pay_debt"
	CommandCancel    = "/cancel"
)

// Commands lists the menu published to Telegram. Descriptions stay short
// because the localized /help carries the details.
var Commands = []struct {
	Name        string
	Description string
}{
	{CommandStart, "Start interacting with the bot"},
	{CommandHelp, "Show available commands"},
	{CommandRegister, "Register phone and bank in this chat"},
	{CommandLang, "Change the chat language"},
	{CommandPing, "Remind a member about their debts"},
	{CommandExpense, "Split an expense"},
	{CommandDebts, "List all debts in the chat"},
	{CommandDebtsToMe, "List debts owed to you"},
	{CommandMyDebts, "List your debts"},
	{CommandPayDebt, "Pay off a debt"},
	{CommandCancel, "Abort the current operation"},
}

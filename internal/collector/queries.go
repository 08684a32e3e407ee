package collector

import (
	"fmt"
	"strings"
	"time"
)

const consoleTimeLayout = "2006-01-02 15:04:05"

// InventoryQuery lists active nodes with their policy domain. The domain
// description holds the group contact.
func InventoryQuery() string {
	return "SELECT n.node_name, n.platform_name, n.domain_name, " +
		"n.decomm_state, d.description, n.contact FROM nodes n, domains d " +
		"WHERE d.domain_name = n.domain_name AND n.decomm_state IS NULL"
}

// EventQuery lists the scheduled events of one node over the retention
// window, oldest first.
func EventQuery(node string, retentionDays int) string {
	return fmt.Sprintf("QUERY EVENT * * node=%s f=d begint=now endd=today begind=-%d", node, retentionDays)
}

// ActivityQuery selects the client messages of one node from the last 24 hours.
func ActivityQuery(node string) string {
	return "SELECT nodename, message FROM actlog " +
		"WHERE originator = 'CLIENT' " +
		"AND date_time>current_timestamp - 24 hours " +
		fmt.Sprintf("AND nodename = '%s'", sqlEscape(node))
}

// VMQuery selects VMware and Hyper-V backup summaries started in [from, to].
func VMQuery(from, to time.Time) string {
	return "SELECT schedule_name, sub_entity, start_time, end_time, " +
		"successful, activity, activity_type, bytes, entity " +
		"FROM summary_extended WHERE (activity_details='VMware' " +
		"OR activity_details LIKE '%Hyper%') AND start_time " +
		fmt.Sprintf("BETWEEN '%s' AND '%s'", from.Format(consoleTimeLayout), to.Format(consoleTimeLayout))
}

func sqlEscape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package plan

import "time"

// AddBusinessDays walks forward from start one calendar day at a time until
// days weekdays (Mon-Fri) have been consumed. Weekend days are stepped over
// without decrementing the budget. start itself is never counted or checked;
// days=0 returns start's date as-is.
func AddBusinessDays(start time.Time, days int) time.Time {
    current := start
    for days > 0 {
        current = current.AddDate(0, 0, 1)
        wd := current.Weekday()
        if wd != time.Saturday && wd != time.Sunday {
            days--
        }
    }
    return current
}

const dateLayout = "2006-01-02"

// DateString formats a time as the tracker-facing YYYY-MM-DD form.
func DateString(t time.Time) string { return t.Format(dateLayout) }

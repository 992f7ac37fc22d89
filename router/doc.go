/*
Package router resolves destination and topic-owner addresses from a static routing table.

The table is assembled once with a Builder and is read-only afterwards, so lookups take no locks.
*/
package router

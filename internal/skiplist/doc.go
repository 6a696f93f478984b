// Package skiplist implements a skip list whose nodes live in the store.
//
// Every level starts at a head node; heads are chained top to bottom through
// their down links and the root cell points at the top one. Data nodes form
// towers: the level-0 node carries the record reference and the nodes above
// it only the key, for navigation.
//
// Tower heights are geometric with p=1/2, capped per list. Updating an
// existing key patches the record fields of its level-0 node in place;
// deleting unlinks the tower at every level and frees its nodes.
package skiplist

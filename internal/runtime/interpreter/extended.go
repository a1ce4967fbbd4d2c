package interpreter

// Handlers of the extended instruction families. A cell index outside the
// heap raises TrapOutOfBounds through the wasm exception stream.

func (m *machine) cell() (int, error) {
	c, err := m.u8()
	return int(c), err
}

func gcLoadCell(m *machine) error {
	c, err := m.cell()
	if err != nil {
		return err
	}
	v, ok := m.in.heap.Load(c)
	if !ok {
		m.throw(TrapOutOfBounds, true)
		return nil
	}
	return m.push(v)
}

func gcStoreCell(m *machine) error {
	c, err := m.cell()
	if err != nil {
		return err
	}
	v, err := m.pop()
	if err != nil {
		return err
	}
	if !m.in.heap.Store(c, v) {
		m.throw(TrapOutOfBounds, true)
	}
	return nil
}

func convert(fn func(int64) int64) handler {
	return func(m *machine) error {
		v, err := m.pop()
		if err != nil {
			return err
		}
		return m.push(fn(v))
	}
}

func lanes(v int64) (l [4]int16) {
	for i := range l {
		l[i] = int16(uint64(v) >> (16 * i))
	}
	return l
}

func packLanes(l [4]int16) int64 {
	var v uint64
	for i, x := range l {
		v |= uint64(uint16(x)) << (16 * i)
	}
	return int64(v)
}

func simdAddI16x4(m *machine) error {
	a, b, err := m.pop2()
	if err != nil {
		return err
	}
	la, lb := lanes(a), lanes(b)
	for i := range la {
		la[i] += lb[i]
	}
	return m.push(packLanes(la))
}

func simdSplatI16x4(m *machine) error {
	v, err := m.pop()
	if err != nil {
		return err
	}
	x := int16(v)
	return m.push(packLanes([4]int16{x, x, x, x}))
}

func atomicLoad(m *machine) error {
	c, err := m.cell()
	if err != nil {
		return err
	}
	v, ok := m.in.heap.Load(c)
	if !ok {
		m.throw(TrapOutOfBounds, true)
		return nil
	}
	return m.push(v)
}

func atomicAdd(m *machine) error {
	c, err := m.cell()
	if err != nil {
		return err
	}
	v, err := m.pop()
	if err != nil {
		return err
	}
	prev, ok := m.in.heap.Add(c, v)
	if !ok {
		m.throw(TrapOutOfBounds, true)
		return nil
	}
	return m.push(prev)
}

// Package student содержит доменную модель студента с точки зрения успеваемости.
//
// Пакет определяет:
//
//   - Сущность Student: накопленный GPA, число зачтённых кредитов, академический статус
//   - Интерфейсы портов: Repository, Cache, Locker
//
// # Архитектурные принципы
//
//  1. Сущность не выполняет I/O — пересчёт GPA и статуса делают обработчики
//     уведомлений в application слое
//  2. Dependency Inversion — интерфейсы реализуются в infrastructure
//  3. Запись GPA/статуса одного студента сериализуется через Locker
//
// # Пример
//
//	st := NewStudent("s-1", "Aigerim")
//	gpa := 3.4
//	st.ApplyGPA(&gpa, 12)
//	st.ApplyStanding(standing.Next(st.Standing, st.GPA))
package student
